package notify

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
)

// LogSender only logs. It is the default driver in development.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	subject, _, err := Render(msg)
	if err != nil {
		return err
	}
	log.Infof("[Notify] %s -> %s: %s", msg.Kind, msg.GuestEmail, subject)
	return nil
}
