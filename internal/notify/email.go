package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailSink sends digests over SMTP with implicit TLS.
type EmailSink struct {
	addr     string
	sender   string
	password string
	receiver string
	dialer   *net.Dialer
}

// NewEmail creates an e-mail sink. addr is host:port of an SMTPS server.
func NewEmail(addr, sender, password, receiver string) *EmailSink {
	return &EmailSink{
		addr:     addr,
		sender:   sender,
		password: password,
		receiver: receiver,
		dialer:   &net.Dialer{Timeout: 10 * time.Second},
	}
}

// Name implements Sink.
func (e *EmailSink) Name() string { return "email" }

// Send implements Sink.
func (e *EmailSink) Send(ctx context.Context, s Summary) error {
	host, _, err := net.SplitHostPort(e.addr)
	if err != nil {
		return fmt.Errorf("parse smtp address %q: %w", e.addr, err)
	}

	conn, err := (&tls.Dialer{NetDialer: e.dialer, Config: &tls.Config{ServerName: host}}).DialContext(ctx, "tcp", e.addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", e.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Auth(smtp.PlainAuth("", e.sender, e.password, host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(e.sender); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(e.receiver); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildEmail(e.sender, e.receiver, s)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

// buildEmail renders a plain-text RFC 5322 message with CRLF line endings.
func buildEmail(from, to string, s Summary) []byte {
	body := PlainText(FormatMessage(s))

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + encodeHeader(Subject(s)) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// encodeHeader applies RFC 2047 encoding when the value is not ASCII.
func encodeHeader(v string) string {
	for _, r := range v {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", v)
		}
	}
	return v
}
