package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/statuswatch/config"
)

// Email sends deliveries over SMTP. STARTTLS is used whenever the server
// offers it; PLAIN auth runs only when a username is configured.
type Email struct {
	cfg config.EmailConfig

	// tlsConfig is used for STARTTLS.
	tlsConfig *tls.Config
	timeout   time.Duration
}

// NewEmail creates an Email notifier.
func NewEmail(cfg config.EmailConfig) *Email {
	return &Email{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host},
		timeout:   30 * time.Second,
	}
}

func (e *Email) Name() string { return "email" }

// Send transmits d to every configured recipient in one SMTP transaction.
func (e *Email) Send(ctx context.Context, d Delivery) error {
	msg, err := buildMessage(e.cfg.From, e.cfg.To, d)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	dialer := &net.Dialer{Timeout: e.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(e.timeout))
	}

	c, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email: handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(e.tlsConfig); err != nil {
			return fmt.Errorf("email: starttls: %w", err)
		}
	}
	if e.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}

	if err := c.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("email: mail from: %w", err)
	}
	for _, rcpt := range e.cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("email: rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("email: data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("email: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return c.Quit()
}

// buildMessage renders a multipart/mixed message: a quoted-printable text
// part followed by the base64 attachment, if any.
func buildMessage(from string, to []string, d Delivery) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	date := d.GeneratedAt
	if date.IsZero() {
		date = time.Now()
	}

	hdr := []string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", d.Subject),
		"Date: " + date.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + strconv.Quote(mw.Boundary()),
	}
	var msg bytes.Buffer
	msg.WriteString(strings.Join(hdr, "\r\n"))
	msg.WriteString("\r\n\r\n")

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, fmt.Errorf("email: body part: %w", err)
	}
	qp := quotedprintable.NewWriter(text)
	if _, err := qp.Write([]byte(d.Body)); err != nil {
		return nil, fmt.Errorf("email: body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("email: body: %w", err)
	}

	if a := d.Attachment; a != nil {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(ct, map[string]string{"name": a.Name})},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
		})
		if err != nil {
			return nil, fmt.Errorf("email: attachment part: %w", err)
		}
		if err := writeBase64Lines(part, a.Data); err != nil {
			return nil, fmt.Errorf("email: attachment: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	msg.Write(buf.Bytes())
	return msg.Bytes(), nil
}

// writeBase64Lines writes data as base64 wrapped at 76 columns.
func writeBase64Lines(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := w.Write([]byte(enc[:76] + "\r\n")); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := w.Write([]byte(enc + "\r\n"))
	return err
}
