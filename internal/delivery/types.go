package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Template is the immutable content of a job, shared by every recipient.
type Template struct {
	FromName string `json:"sender_name"`
	Subject  string `json:"subject"`
	HTML     string `json:"html_body"`
	Text     string `json:"text_body,omitempty"`
}

// Message is one rendered email for one recipient.
type Message struct {
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// Outcome is the result of a single delivery attempt.
type Outcome struct {
	OK     bool
	Detail string
}

func Sent(detail string) Outcome { return Outcome{OK: true, Detail: detail} }

func Failed(err error) Outcome {
	if err == nil {
		return Outcome{OK: false, Detail: "unknown error"}
	}
	return Outcome{OK: false, Detail: err.Error()}
}

type Sender interface {
	Send(ctx context.Context, msg Message) Outcome
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, msg Message) Outcome

func (f SenderFunc) Send(ctx context.Context, msg Message) Outcome { return f(ctx, msg) }

// Config selects and configures a driver.
type Config struct {
	Driver  string
	Timeout time.Duration

	SMTP   SMTPConfig
	Resend ResendConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the envelope/header address. Defaults to Username.
	From string
}

type ResendConfig struct {
	APIKey string
	From   string
}

func (c SMTPConfig) addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c SMTPConfig) from() string {
	if f := strings.TrimSpace(c.From); f != "" {
		return f
	}
	return c.Username
}
