// Package mailer sends transactional mail over SMTP. Only the email
// verification message exists today.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ifiasoft/erp-api/internal/config"
)

// SMTPMailer speaks plain-auth SMTP using the settings from config.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	appURL   string

	// send is swappable in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg *config.Config) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTPServer,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.FromEmail,
		appURL:   strings.TrimRight(cfg.AppURL, "/"),
		send:     smtp.SendMail,
	}
}

// SendVerificationMail mails the single-use verification link to addr.
func (m *SMTPMailer) SendVerificationMail(ctx context.Context, addr, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/verify-email/%s", m.appURL, token)
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", addr)
	b.WriteString("Subject: Verify your email address\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Welcome!\r\n\r\n")
	b.WriteString("Please confirm your email address by opening the link below:\r\n\r\n")
	b.WriteString(link + "\r\n\r\n")
	b.WriteString("If you did not create an account, you can ignore this message.\r\n")

	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	hostPort := fmt.Sprintf("%s:%d", m.host, m.port)
	if err := m.send(hostPort, auth, m.from, []string{addr}, []byte(b.String())); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}
