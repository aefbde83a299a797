package whatsapp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// MessageSender is the part of *whatsmeow.Client used to deliver text.
type MessageSender interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

var _ MessageSender = (*whatsmeow.Client)(nil)

// Sender delivers plain text messages through one session.
type Sender struct {
	client MessageSender
}

func NewSender(client MessageSender) *Sender {
	return &Sender{client: client}
}

// Send messages number, which may carry formatting; only digits are kept.
func (s *Sender) Send(ctx context.Context, number, text string) error {
	user := Sanitize(number)
	if user == "" {
		return fmt.Errorf("invalid number %q", number)
	}
	jid := types.NewJID(user, types.DefaultUserServer)
	if _, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)}); err != nil {
		return fmt.Errorf("failed to send to %s: %w", user, err)
	}
	return nil
}

// DryRun logs messages instead of sending them. Used when no session is
// configured.
func DryRun(_ context.Context, number, text string) error {
	logrus.WithFields(logrus.Fields{"number": Sanitize(number), "length": len(text)}).Info("[WORKER] Dry run, message not sent")
	return nil
}
