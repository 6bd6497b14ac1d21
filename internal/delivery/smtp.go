package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"time"

	logx "bulksend/pkg/logx"
)

// SMTPSender opens one connection per message, matching the pacing of the
// dispatch workers (minutes between sends make pooled connections useless).
type SMTPSender struct {
	cfg     SMTPConfig
	timeout time.Duration
	log     logx.Logger
	now     func() time.Time
}

func NewSMTPSender(cfg SMTPConfig, timeout time.Duration, log logx.Logger) *SMTPSender {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SMTPSender{cfg: cfg, timeout: timeout, log: log, now: time.Now}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) Outcome {
	from := s.cfg.from()
	raw, err := BuildMIME(from, msg, s.now())
	if err != nil {
		return Failed(fmt.Errorf("build message: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.deliver(ctx, from, msg.To, raw); err != nil {
		s.log.Debug("smtp send failed", logx.Recipient("to", msg.To), logx.Duration("took", time.Since(start)), logx.Err(err))
		return Failed(err)
	}
	s.log.Debug("smtp send ok", logx.Recipient("to", msg.To), logx.Duration("took", time.Since(start)))
	return Sent("sent")
}

func (s *SMTPSender) deliver(ctx context.Context, from, to string, raw []byte) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	// Bound every read/write by the same deadline as the dial.
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if _, isTLS := conn.(*tls.Conn); !isTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return c.Quit()
}

// dial uses implicit TLS on 465 and plain TCP (upgraded via STARTTLS) elsewhere.
func (s *SMTPSender) dial(ctx context.Context) (net.Conn, error) {
	if s.cfg.Host == "" {
		return nil, errors.New("smtp host not configured")
	}
	nd := &net.Dialer{Timeout: s.timeout}
	addr := s.cfg.addr()
	if s.cfg.Port == 465 {
		td := &tls.Dialer{NetDialer: nd, Config: &tls.Config{ServerName: s.cfg.Host}}
		conn, err := td.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", addr, err)
		}
		return conn, nil
	}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return conn, nil
}
