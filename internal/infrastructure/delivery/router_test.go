package delivery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, to, msg string) error {
	return m.Called(ctx, to, msg).Error(0)
}

func TestSendMessage_EmailIdentity(t *testing.T) {
	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, "alice@example.com", "Subject", "Body").Return(nil)

	r := NewRouter(ml, &mockSMSSender{})
	require.NoError(t, r.SendMessage(context.Background(), "alice@example.com", "Subject", "Body"))
	ml.AssertExpectations(t)
}

func TestSendMessage_PhoneIdentity(t *testing.T) {
	sms := &mockSMSSender{}
	sms.On("SendSMS", mock.Anything, "+15551234567", "Body").Return(nil)

	r := NewRouter(&mockMailer{}, sms)
	require.NoError(t, r.SendMessage(context.Background(), "+15551234567", "Subject", "Body"))
	sms.AssertExpectations(t)
}

func TestSendMessage_PhoneWithoutSNS(t *testing.T) {
	r := NewRouter(&mockMailer{}, nil)
	err := r.SendMessage(context.Background(), "+15551234567", "Subject", "Body")
	assert.ErrorIs(t, err, ErrNoChannel)
}
