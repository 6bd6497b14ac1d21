package delivery

import (
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"strings"

	"github.com/osteele/liquid"
	liquidrender "github.com/osteele/liquid/render"
)

// NormalizeHTML wraps every non-blank line in a paragraph and turns blank
// lines into <br>, so bodies typed into a plain textarea keep their layout.
func NormalizeHTML(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var b strings.Builder
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			b.WriteString("<br>")
			continue
		}
		b.WriteString("<p>")
		b.WriteString(l)
		b.WriteString("</p>")
	}
	return b.String()
}

// FormatFrom builds the From header value. An empty display name yields the
// bare address.
func FormatFrom(name, addr string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return addr
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}

func encodeHeader(s string) string { return mime.QEncoding.Encode("utf-8", s) }

// ErrIncludeDisabled is returned for any {% include %} in job content.
var ErrIncludeDisabled = errors.New("include is not allowed")

// noIncludes replaces liquid's default store, which reads from the working
// directory.
type noIncludes struct{}

func (noIncludes) ReadTemplate(name string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %q", ErrIncludeDisabled, name)
}

var _ liquidrender.TemplateStore = noIncludes{}

// sampleRecipient is used to test-render a template in Prepare.
const sampleRecipient = "recipient@example.com"

// Composer renders a Template for individual recipients.
//
// Subject and bodies may reference {{ email }}, {{ local }} and {{ domain }}
// only; any other variable is an error. Fields without template tags are
// passed through untouched.
type Composer struct {
	engine *liquid.Engine
}

func NewComposer() *Composer {
	e := liquid.NewEngine()
	e.StrictVariables()
	e.RegisterTemplateStore(noIncludes{})
	return &Composer{engine: e}
}

// Prepared is a Template whose liquid sources have been parsed once.
type Prepared struct {
	tpl Template

	subject *liquid.Template
	html    *liquid.Template
	text    *liquid.Template
}

// Prepare normalizes the HTML body, parses every field and renders it once
// for a sample recipient, so unknown variables and includes are rejected
// before any recipient is tried.
func (c *Composer) Prepare(tpl Template) (*Prepared, error) {
	p := &Prepared{tpl: tpl}
	p.tpl.HTML = NormalizeHTML(tpl.HTML)

	var err error
	if p.subject, err = c.parse("subject", p.tpl.Subject); err != nil {
		return nil, err
	}
	if p.html, err = c.parse("html_body", p.tpl.HTML); err != nil {
		return nil, err
	}
	if p.text, err = c.parse("text_body", p.tpl.Text); err != nil {
		return nil, err
	}
	if _, err := p.Render(sampleRecipient); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Composer) parse(field, src string) (*liquid.Template, error) {
	if !hasTags(src) {
		return nil, nil
	}
	t, err := c.engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

func hasTags(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

// Render produces the message for one recipient.
func (p *Prepared) Render(to string) (Message, error) {
	if p == nil {
		return Message{}, errors.New("template not prepared")
	}
	b := bindings(to)
	msg := Message{FromName: p.tpl.FromName, To: to}

	var err error
	if msg.Subject, err = render(p.subject, p.tpl.Subject, b); err != nil {
		return Message{}, fmt.Errorf("subject: %w", err)
	}
	if msg.HTML, err = render(p.html, p.tpl.HTML, b); err != nil {
		return Message{}, fmt.Errorf("html_body: %w", err)
	}
	if msg.Text, err = render(p.text, p.tpl.Text, b); err != nil {
		return Message{}, fmt.Errorf("text_body: %w", err)
	}
	return msg, nil
}

func render(t *liquid.Template, raw string, b liquid.Bindings) (string, error) {
	if t == nil {
		return raw, nil
	}
	out, err := t.RenderString(b)
	if err != nil {
		return "", err
	}
	return out, nil
}

func bindings(to string) liquid.Bindings {
	local, domain := to, ""
	if i := strings.LastIndexByte(to, '@'); i >= 0 {
		local, domain = to[:i], to[i+1:]
	}
	return liquid.Bindings{"email": to, "local": local, "domain": domain}
}
