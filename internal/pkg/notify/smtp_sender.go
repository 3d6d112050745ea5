package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TableFox/internal/pkg/env"
)

// SMTPSender sends HTML mail through the SMTP_* server.
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	sender   string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender() *SMTPSender {
	s := &SMTPSender{
		host:     env.GetEnv("SMTP_HOST", ""),
		port:     env.GetEnv("SMTP_PORT", "25"),
		username: env.GetEnv("SMTP_USERNAME", ""),
		password: env.GetEnv("SMTP_PASSWORD", ""),
		sender:   env.GetEnv("SMTP_SENDER", ""),
		send:     smtp.SendMail,
	}
	if s.sender == "" {
		s.sender = "no-reply@localhost"
		log.Warnf("[Notify] SMTP_SENDER not set, using default sender: %s", s.sender)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.username != "" && s.password != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	raw := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", s.sender, msg.GuestEmail, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := s.send(addr, auth, s.sender, []string{msg.GuestEmail}, raw); err != nil {
		log.Errorf("[Notify] SMTP send error: %v", err)
		return err
	}
	log.Infof("[Notify] Email %s sent to %s via %s", msg.Kind, msg.GuestEmail, addr)
	return nil
}
