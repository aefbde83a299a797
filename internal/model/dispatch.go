package model

// DispatchJob is one execution of a campaign handed to the send pipeline.
type DispatchJob struct {
	ExecutionID string            `json:"executionId"`
	CampaignID  int               `json:"campaignId"`
	TenantID    int               `json:"tenantId"`
	WhatsappID  *int              `json:"whatsappId,omitempty"`
	Message     string            `json:"message"`
	Audience    []ContactListItem `json:"audience"`
}

// DispatchCompletion reports the end of an execution. Err is empty on success.
type DispatchCompletion struct {
	ExecutionID string `json:"executionId"`
	CampaignID  int    `json:"campaignId"`
	TenantID    int    `json:"tenantId"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
	Err         string `json:"error,omitempty"`
}

func (d DispatchCompletion) OK() bool {
	return d.Err == ""
}
