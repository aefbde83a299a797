package whatsapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
)

type fakeChecker struct {
	known map[string]string
	err   error
	asked []string
}

func (f *fakeChecker) IsOnWhatsApp(_ context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error) {
	f.asked = append(f.asked, phones...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.IsOnWhatsAppResponse, 0, len(phones))
	for _, p := range phones {
		user, ok := f.known[p]
		out = append(out, types.IsOnWhatsAppResponse{
			Query: p,
			JID:   types.NewJID(user, types.DefaultUserServer),
			IsIn:  ok,
		})
	}
	return out, nil
}

func TestCheckNumberReachable(t *testing.T) {
	fc := &fakeChecker{known: map[string]string{"5511999990000": "551199990000"}}
	v := NewValidator(fc, 0, 1)

	res, err := v.CheckNumber(context.Background(), "+55 (11) 99999-0000", 1)
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Equal(t, "551199990000", res.CanonicalAddress)
	assert.Equal(t, []string{"5511999990000"}, fc.asked)
}

func TestCheckNumberDefinitiveNegative(t *testing.T) {
	v := NewValidator(&fakeChecker{}, 0, 1)

	res, err := v.CheckNumber(context.Background(), "123", 1)
	require.NoError(t, err)
	assert.False(t, res.Reachable)
	assert.Empty(t, res.CanonicalAddress)
}

func TestCheckNumberUnavailable(t *testing.T) {
	v := NewValidator(&fakeChecker{err: errors.New("socket closed")}, 0, 1)
	_, err := v.CheckNumber(context.Background(), "123", 1)
	assert.True(t, appErrors.IsValidationUnavailable(err))

	noSession := NewValidator(nil, 0, 1)
	_, err = noSession.CheckNumber(context.Background(), "123", 1)
	assert.True(t, appErrors.IsValidationUnavailable(err))
}

func TestCheckNumberUsesTenantSession(t *testing.T) {
	def := &fakeChecker{}
	tenant := &fakeChecker{known: map[string]string{"1": "1"}}
	v := NewValidator(def, 0, 1)
	v.Register(7, tenant)

	res, err := v.CheckNumber(context.Background(), "1", 7)
	require.NoError(t, err)
	assert.True(t, res.Reachable)
	assert.Empty(t, def.asked)
}

func TestRateLimitHonoursDeadline(t *testing.T) {
	v := NewValidator(&fakeChecker{}, 0.001, 1)
	_, err := v.CheckNumber(context.Background(), "1", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = v.CheckNumber(ctx, "2", 1)
	assert.True(t, appErrors.IsValidationUnavailable(err))

	// other tenants have their own budget
	_, err = v.CheckNumber(context.Background(), "3", 2)
	assert.NoError(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "5511999990000", Sanitize("+55 11 99999-0000"))
	assert.Empty(t, Sanitize("n/a"))
}
