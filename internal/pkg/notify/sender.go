package notify

import (
	"fmt"

	"github.com/ManuelReschke/TableFox/internal/pkg/config"
)

// NewSender builds the sender selected by NOTIFY_DRIVER.
func NewSender(cfg config.NotifyConfig) (Sender, error) {
	switch cfg.Driver {
	case "", "log":
		return LogSender{}, nil
	case "smtp":
		return NewSMTPSender(), nil
	case "amqp":
		return NewAMQPSender(cfg.RabbitMQURL, cfg.Exchange)
	default:
		return nil, fmt.Errorf("unknown NOTIFY_DRIVER %q", cfg.Driver)
	}
}
