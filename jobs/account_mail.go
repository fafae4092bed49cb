package jobs

import (
	"context"
	"fmt"
)

// AccountMailer builds and enqueues account lifecycle mail. It satisfies the
// auth package's Mailer contract.
type AccountMailer struct {
	client  *Client
	baseURL string
}

// NewAccountMailer constructs an AccountMailer.
func NewAccountMailer(client *Client, baseURL string) *AccountMailer {
	return &AccountMailer{client: client, baseURL: baseURL}
}

// SendActivation enqueues the activation email.
func (m *AccountMailer) SendActivation(ctx context.Context, email, username, token string) error {
	link := fmt.Sprintf("%s/auth/activate/%s", m.baseURL, token)
	_, err := m.client.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      email,
		Subject: "Activate your Pulseboard account",
		Body: fmt.Sprintf(
			"Hi %s,\n\nWelcome to Pulseboard. Confirm your address to activate your account:\n\n%s\n\nThe link is valid for 48 hours.\n",
			username, link),
	})
	return err
}

// SendPasswordReset enqueues the password reset email.
func (m *AccountMailer) SendPasswordReset(ctx context.Context, email, username, token string) error {
	_, err := m.client.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      email,
		Subject: "Reset your Pulseboard password",
		Body: fmt.Sprintf(
			"Hi %s,\n\nA password reset was requested for your account. Use this token within 2 hours:\n\n%s\n\nIf you did not request this, ignore this message.\n",
			username, token),
	})
	return err
}
