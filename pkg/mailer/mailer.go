package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/ikkim/localservices-backend/config"
	"github.com/ikkim/localservices-backend/pkg/logger"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const sendTimeout = 10 * time.Second

// Message is a rendered email ready for the transport.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers a rendered message.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Mailer renders verification and account emails and hands them to a
// Transport.
type Mailer struct {
	transport   Transport
	brand       string
	frontendURL string
}

// New builds a Mailer for cfg. When SMTP credentials are missing it runs in
// dev mode and writes messages to the log instead of sending them.
func New(cfg config.SMTPConfig) *Mailer {
	var transport Transport
	if cfg.Email == "" || cfg.Password == "" {
		logger.Warn("SMTP credentials not configured, emails will be logged only", nil)
		transport = LogTransport{}
	} else {
		transport = &SMTPTransport{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Email,
			Password: cfg.Password,
			From:     cfg.Email,
			FromName: cfg.FromName,
		}
	}
	return NewWithTransport(transport, cfg.FromName, cfg.FrontendURL)
}

func NewWithTransport(transport Transport, brand, frontendURL string) *Mailer {
	if brand == "" {
		brand = "Local Services"
	}
	return &Mailer{
		transport:   transport,
		brand:       brand,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// PurposeLabel turns a purpose key such as "password_reset" into a
// human-readable "Password Reset". Casers hold state, so one is built per
// call.
func (m *Mailer) PurposeLabel(purpose string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(purpose, "_", " "))
}

func (m *Mailer) SendCode(ctx context.Context, purpose, to, displayName, code string) error {
	label := m.PurposeLabel(purpose)
	body, err := render(codeTemplate, map[string]interface{}{
		"Brand": m.brand,
		"Name":  displayNameOr(displayName, to),
		"Label": label,
		"Code":  code,
		"Link":  m.verifyLink(purpose, to),
	})
	if err != nil {
		return err
	}
	return m.deliver(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] %s verification code", m.brand, label),
		HTML:    body,
	})
}

func (m *Mailer) SendPasswordChanged(ctx context.Context, to, displayName string) error {
	body, err := render(passwordChangedTemplate, map[string]interface{}{
		"Brand": m.brand,
		"Name":  displayNameOr(displayName, to),
	})
	if err != nil {
		return err
	}
	return m.deliver(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] Your password was changed", m.brand),
		HTML:    body,
	})
}

func (m *Mailer) SendWelcome(ctx context.Context, to, displayName string) error {
	body, err := render(welcomeTemplate, map[string]interface{}{
		"Brand": m.brand,
		"Name":  displayNameOr(displayName, to),
		"Link":  m.frontendURL,
	})
	if err != nil {
		return err
	}
	return m.deliver(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("Welcome to %s", m.brand),
		HTML:    body,
	})
}

func (m *Mailer) deliver(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := m.transport.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logger.Info("Email sent", map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
	})
	return nil
}

func (m *Mailer) verifyLink(purpose, to string) string {
	if m.frontendURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/auth/verify?identity=%s&step=code&purpose=%s", m.frontendURL, to, purpose)
}

func displayNameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return buf.String(), nil
}

// SMTPTransport sends over SMTP with STARTTLS and PLAIN auth.
type SMTPTransport struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

func (t *SMTPTransport) Deliver(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(t.Host, t.Port)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.Host}); err != nil {
			return err
		}
	}
	if err := client.Auth(smtp.PlainAuth("", t.Username, t.Password, t.Host)); err != nil {
		return err
	}
	if err := client.Mail(t.From); err != nil {
		return err
	}
	if err := client.Rcpt(msg.To); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(Compose(t.From, t.FromName, msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// Compose renders RFC 5322 headers plus the HTML body.
func Compose(from, fromName string, msg Message) []byte {
	var b strings.Builder
	sender := from
	if fromName != "" {
		sender = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), from)
	}
	fmt.Fprintf(&b, "From: %s\r\n", sender)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogTransport is the dev-mode transport. It prints the message instead of
// sending it, which includes any code in the body.
type LogTransport struct{}

func (LogTransport) Deliver(_ context.Context, msg Message) error {
	logger.Info("[DEV MODE] Email not sent", map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.HTML,
	})
	return nil
}
