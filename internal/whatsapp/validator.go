package whatsapp

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/types"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
)

var errNoClient = errors.New("no whatsapp session for tenant")

// Checker is the part of *whatsmeow.Client the validator uses.
type Checker interface {
	IsOnWhatsApp(ctx context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error)
}

// Result of a completed check. Reachable false with a nil error is a
// definitive negative from the network.
type Result struct {
	CanonicalAddress string
	Reachable        bool
}

// Validator checks numbers against WhatsApp using the tenant's session, or
// the default session when the tenant has none. Calls are throttled per
// tenant.
type Validator struct {
	mu       sync.Mutex
	def      Checker
	clients  map[int]Checker
	limiters map[int]*rate.Limiter

	limit rate.Limit
	burst int
}

func NewValidator(def Checker, perSecond float64, burst int) *Validator {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Validator{
		def:      def,
		clients:  make(map[int]Checker),
		limiters: make(map[int]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Register binds a tenant to its own session.
func (v *Validator) Register(tenantID int, c Checker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clients[tenantID] = c
}

func (v *Validator) client(tenantID int) (Checker, *rate.Limiter) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.clients[tenantID]
	if !ok {
		c = v.def
	}
	l, ok := v.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(v.limit, v.burst)
		v.limiters[tenantID] = l
	}
	return c, l
}

// CheckNumber returns the canonical address (JID user part) of number.
// Any failure to get an answer is a ValidationUnavailableError.
func (v *Validator) CheckNumber(ctx context.Context, number string, tenantID int) (Result, error) {
	phone := Sanitize(number)
	c, limiter := v.client(tenantID)
	if c == nil {
		return Result{}, appErrors.NewValidationUnavailable(number, errNoClient)
	}
	if err := limiter.Wait(ctx); err != nil {
		return Result{}, appErrors.NewValidationUnavailable(number, err)
	}

	resp, err := c.IsOnWhatsApp(ctx, []string{phone})
	if err != nil {
		return Result{}, appErrors.NewValidationUnavailable(number, err)
	}
	for _, r := range resp {
		if r.IsIn {
			logrus.WithFields(logrus.Fields{"tenant_id": tenantID, "jid": r.JID.String()}).Debug("[VALIDATOR] Number is on WhatsApp")
			return Result{CanonicalAddress: r.JID.User, Reachable: true}, nil
		}
	}
	return Result{}, nil
}

// Sanitize keeps only the digits of a phone number.
func Sanitize(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
