package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"

	logx "bulksend/pkg/logx"
)

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client  *resend.Client
	from    string
	timeout time.Duration
	log     logx.Logger
}

func NewResendSender(cfg ResendConfig, timeout time.Duration, log logx.Logger) *ResendSender {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ResendSender{
		client:  resend.NewClient(cfg.APIKey),
		from:    cfg.From,
		timeout: timeout,
		log:     log,
	}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := &resend.SendEmailRequest{
		From:    FormatFrom(msg.FromName, s.from),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	sent, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		s.log.Debug("resend send failed", logx.Recipient("to", msg.To), logx.Err(err))
		return Failed(fmt.Errorf("resend: %w", err))
	}
	s.log.Debug("resend send ok", logx.Recipient("to", msg.To), logx.String("message_id", sent.Id))
	return Sent("sent (" + sent.Id + ")")
}
