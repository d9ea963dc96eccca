package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"net/url"

	"github.com/spec-kit/wellness-service/internal/config"
	"github.com/spec-kit/wellness-service/internal/domain"
)

// Mailer dispatches verification and reset links. Fire-and-forget from the
// verification subsystem's perspective: an error only means the message never
// left this process, and a resend simply issues a new token.
type Mailer interface {
	SendVerificationLink(ctx context.Context, address string, subject domain.SubjectRef, token string) error
	SendResetLink(ctx context.Context, address string, subject domain.SubjectRef, token string) error
}

type smtpMailer struct {
	cfg     config.MailConfig
	baseURL string
}

// NewSMTPMailer builds a Mailer delivering through a plain SMTP relay.
// baseURL is the public address of the callback listener.
func NewSMTPMailer(cfg config.MailConfig, baseURL string) Mailer {
	return &smtpMailer{cfg: cfg, baseURL: baseURL}
}

func (m *smtpMailer) SendVerificationLink(_ context.Context, address string, subject domain.SubjectRef, token string) error {
	link := VerificationLink(m.baseURL, subject, token)
	body := fmt.Sprintf("Welcome! Please confirm your account by opening this link:\r\n\r\n%s\r\n", link)
	return m.send(address, "Confirm your account", body)
}

func (m *smtpMailer) SendResetLink(_ context.Context, address string, subject domain.SubjectRef, token string) error {
	link := ResetLink(m.baseURL, token)
	body := fmt.Sprintf("A password reset was requested for your account. Open this link to continue:\r\n\r\n%s\r\n\r\nIf this wasn't you, ignore this message; the link expires on its own.\r\n", link)
	return m.send(address, "Reset your password", body)
}

func (m *smtpMailer) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.cfg.From, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg))
}

// VerificationLink builds the callback URL a browser hits to redeem a
// verification token. Users and keepers land on different routes; the
// redemption algorithm behind them is identical.
func VerificationLink(baseURL string, subject domain.SubjectRef, token string) string {
	path := "/verify"
	if subject.Type == domain.SubjectTypeKeeper {
		path = "/verify-staff"
	}
	q := url.Values{}
	q.Set("token", token)
	q.Set("subject_id", subject.ID)
	return baseURL + path + "?" + q.Encode()
}

// ResetLink builds the password-reset landing URL.
func ResetLink(baseURL, token string) string {
	q := url.Values{}
	q.Set("token", token)
	return baseURL + "/reset-password?" + q.Encode()
}
