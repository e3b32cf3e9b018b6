package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"pinboard/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Mailer struct {
	from   string
	sender Sender
	tmpl   *template.Template
}

type linkData struct {
	Username  string
	Link      string
	ExpiresIn string
}

func New(from string, sender Sender) (*Mailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("mailer: failed parsing templates: %w", err)
	}
	return &Mailer{from: from, sender: sender, tmpl: tmpl}, nil
}

func (m *Mailer) SendVerification(ctx context.Context, to, username, link string, ttl time.Duration) error {
	return m.send(ctx, to, "Verify your Pinboard account", "verify.html",
		linkData{Username: username, Link: link, ExpiresIn: humanize(ttl)})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, username, link string, ttl time.Duration) error {
	return m.send(ctx, to, "Reset your Pinboard password", "reset.html",
		linkData{Username: username, Link: link, ExpiresIn: humanize(ttl)})
}

func (m *Mailer) send(ctx context.Context, to, subject, name string, data interface{}) error {
	msg, err := m.Render(to, subject, name, data)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailer: failed sending %s to %s: %w", name, to, err)
	}
	return nil
}

// Render builds the message with an HTML body and its plain-text alternative.
func (m *Mailer) Render(to, subject, name string, data interface{}) (Message, error) {
	var buf bytes.Buffer
	if err := m.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("mailer: failed rendering %s: %w", name, err)
	}
	html := buf.String()

	text, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return Message{}, fmt.Errorf("mailer: failed converting %s to text: %w", name, err)
	}

	return Message{From: m.from, To: to, Subject: subject, HTML: html, Text: text}, nil
}

func humanize(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}

// LogSender only logs outgoing mail. Used when no SMTP server is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	logger.Log(ctx).Infow("mail not sent, SMTP is not configured",
		"to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}
