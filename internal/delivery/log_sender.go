package delivery

import (
	"context"

	logx "bulksend/pkg/logx"
)

// LogSender never delivers anything. It is the "log" driver used for dry runs.
type LogSender struct {
	log logx.Logger
}

func NewLogSender(log logx.Logger) *LogSender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) Outcome {
	if err := ctx.Err(); err != nil {
		return Failed(err)
	}
	s.log.Info("dry-run send", logx.Recipient("to", msg.To), logx.String("subject", msg.Subject), logx.Int("html_len", len(msg.HTML)))
	return Sent("logged (dry run)")
}
