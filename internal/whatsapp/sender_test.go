package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

type fakeSender struct {
	to   []types.JID
	msgs []*waE2E.Message
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, to types.JID, message *waE2E.Message, _ ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	if f.err != nil {
		return whatsmeow.SendResponse{}, f.err
	}
	f.to = append(f.to, to)
	f.msgs = append(f.msgs, message)
	return whatsmeow.SendResponse{}, nil
}

func TestSenderSendsConversation(t *testing.T) {
	fs := &fakeSender{}
	s := NewSender(fs)

	require.NoError(t, s.Send(context.Background(), "+55 (11) 99999-0000", "hello"))
	require.Len(t, fs.to, 1)
	assert.Equal(t, "5511999990000", fs.to[0].User)
	assert.Equal(t, types.DefaultUserServer, fs.to[0].Server)
	assert.Equal(t, "hello", fs.msgs[0].GetConversation())
}

func TestSenderErrors(t *testing.T) {
	s := NewSender(&fakeSender{err: errors.New("not connected")})

	err := s.Send(context.Background(), "5511999990000", "hi")
	assert.ErrorContains(t, err, "not connected")

	err = s.Send(context.Background(), "n/a", "hi")
	assert.ErrorContains(t, err, "invalid number")
}

func TestDryRun(t *testing.T) {
	assert.NoError(t, DryRun(context.Background(), "+55 11 99999-0000", "hello"))
}
