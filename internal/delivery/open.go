package delivery

import (
	"errors"
	"fmt"
	"strings"

	logx "bulksend/pkg/logx"
)

// Open builds the configured Sender.
func Open(cfg Config, log logx.Logger) (Sender, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "smtp":
		if strings.TrimSpace(cfg.SMTP.Host) == "" || cfg.SMTP.Port <= 0 {
			return nil, errors.New("smtp host and port are required")
		}
		if cfg.SMTP.Username == "" || cfg.SMTP.Password == "" {
			return nil, errors.New("smtp username and password are required")
		}
		return NewSMTPSender(cfg.SMTP, cfg.Timeout, log), nil
	case "resend":
		if strings.TrimSpace(cfg.Resend.APIKey) == "" {
			return nil, errors.New("resend api key is required")
		}
		if strings.TrimSpace(cfg.Resend.From) == "" {
			return nil, errors.New("resend from address is required")
		}
		return NewResendSender(cfg.Resend, cfg.Timeout, log), nil
	case "log":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown delivery driver: %s", cfg.Driver)
	}
}
