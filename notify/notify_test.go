package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/statuswatch/config"
)

func sampleDelivery() Delivery {
	return Delivery{
		RunID:       "run-1",
		Subject:     Subject(time.Date(2026, time.October, 19, 7, 0, 0, 0, time.UTC)),
		Body:        "Prezado Supervisor Técnico,\n\nSegue em anexo o relatório.",
		GeneratedAt: time.Date(2026, time.October, 19, 7, 0, 0, 0, time.UTC),
		Attachment: &Attachment{
			Name:        "Relatorio_Integrado_2026-10-19.html",
			ContentType: "text/html",
			Data:        []byte(strings.Repeat("<p>relatório</p>", 20)),
		},
		Data: map[string]int{"sites": 12},
	}
}

func TestSubject(t *testing.T) {
	if got := Subject(time.Date(2026, time.October, 9, 0, 0, 0, 0, time.UTC)); got != "Relatório Técnico Diário - 09/10/2026" {
		t.Errorf("Subject = %q", got)
	}
}

func TestBuildMessage(t *testing.T) {
	d := sampleDelivery()
	raw, err := buildMessage("noc@example.org", []string{"a@example.org", "b@example.org"}, d)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	if err != nil || subject != d.Subject {
		t.Errorf("Subject = %q, %v", subject, err)
	}
	if msg.Header.Get("To") != "a@example.org, b@example.org" {
		t.Errorf("To = %q", msg.Header.Get("To"))
	}

	mt, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mt != "multipart/mixed" {
		t.Fatalf("Content-Type = %q, %v", mt, err)
	}
	mr := multipart.NewReader(msg.Body, params["boundary"])

	text, err := mr.NextPart()
	if err != nil {
		t.Fatalf("text part: %v", err)
	}
	body, _ := io.ReadAll(text)
	if strings.ReplaceAll(string(body), "\r\n", "\n") != d.Body {
		t.Errorf("body = %q", body)
	}

	att, err := mr.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	if att.FileName() != d.Attachment.Name {
		t.Errorf("filename = %q", att.FileName())
	}
	encoded, _ := io.ReadAll(att)
	for _, line := range strings.Split(strings.TrimSpace(string(encoded)), "\r\n") {
		if len(line) > 76 {
			t.Errorf("base64 line of %d columns", len(line))
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	if err != nil || string(decoded) != string(d.Attachment.Data) {
		t.Errorf("attachment round trip failed: %v", err)
	}
}

// fakeSMTP accepts one session without STARTTLS or AUTH and records it.
type fakeSMTP struct {
	mu    sync.Mutex
	from  string
	rcpts []string
	data  string
	done  chan struct{}
}

func startSMTP(t *testing.T) (*fakeSMTP, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	f := &fakeSMTP{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		tp.PrintfLine("220 fake ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				tp.PrintfLine("250-fake")
				tp.PrintfLine("250 8BITMIME")
			case "MAIL":
				f.mu.Lock()
				f.from = line
				f.mu.Unlock()
				tp.PrintfLine("250 OK")
			case "RCPT":
				f.mu.Lock()
				f.rcpts = append(f.rcpts, line)
				f.mu.Unlock()
				tp.PrintfLine("250 OK")
			case "DATA":
				tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				f.mu.Lock()
				f.data = string(data)
				f.mu.Unlock()
				tp.PrintfLine("250 queued")
			case "QUIT":
				tp.PrintfLine("221 bye")
				return
			default:
				tp.PrintfLine("502 unsupported")
			}
		}
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return f, host, p
}

func TestEmailSend(t *testing.T) {
	f, host, port := startSMTP(t)

	e := NewEmail(config.EmailConfig{
		Host: host,
		Port: port,
		From: "noc@example.org",
		To:   []string{"a@example.org", "b@example.org"},
	})
	if err := e.Send(context.Background(), sampleDelivery()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session did not finish")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.Contains(f.from, "<noc@example.org>") {
		t.Errorf("MAIL = %q", f.from)
	}
	if len(f.rcpts) != 2 {
		t.Errorf("RCPT = %v", f.rcpts)
	}
	if !strings.Contains(f.data, "Relatorio_Integrado_2026-10-19.html") {
		t.Error("attachment missing from DATA")
	}
}

func TestWebhookSend(t *testing.T) {
	var mu sync.Mutex
	var attempts int
	var got Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get(SignatureHeader) != "sha256="+Sign("s3cret", body) {
			t.Errorf("bad signature %q", r.Header.Get(SignatureHeader))
		}
		json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookConfig{URL: srv.URL, Secret: "s3cret"})
	w.delays = []time.Duration{0, time.Millisecond}

	if err := w.Send(context.Background(), sampleDelivery()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if got.Type != EventReportGenerated || got.RunID != "run-1" || got.Timestamp == 0 {
		t.Errorf("event = %+v", got)
	}
}

func TestWebhookSend_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookConfig{URL: srv.URL})
	w.delays = []time.Duration{0, time.Millisecond, time.Millisecond}

	err := w.Send(context.Background(), sampleDelivery())
	if err == nil || !strings.Contains(err.Error(), "exhausted 3 attempts") || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %v", err)
	}
}

func TestWebhookSend_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookConfig{URL: srv.URL})
	w.delays = []time.Duration{0, time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := w.Send(ctx, sampleDelivery())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

type stubNotifier struct {
	name string
	err  error
	sent int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Send(ctx context.Context, d Delivery) error {
	s.sent++
	return s.err
}

func TestSendAll(t *testing.T) {
	ok := &stubNotifier{name: "ok"}
	bad := &stubNotifier{name: "bad", err: errors.New("refused")}
	after := &stubNotifier{name: "after"}

	err := SendAll(context.Background(), []Notifier{ok, bad, after}, sampleDelivery())
	if err == nil || !strings.Contains(err.Error(), "bad: refused") {
		t.Errorf("err = %v", err)
	}
	if ok.sent != 1 || bad.sent != 1 || after.sent != 1 {
		t.Error("a failing channel stopped the others")
	}
}

func TestFromConfig(t *testing.T) {
	if n := FromConfig(config.EmailConfig{}, config.WebhookConfig{}); len(n) != 0 {
		t.Errorf("got %d notifiers from empty config", len(n))
	}
	n := FromConfig(
		config.EmailConfig{Host: "smtp.example.org", To: []string{"a@example.org"}},
		config.WebhookConfig{URL: "https://hooks.example.org"},
	)
	if len(n) != 2 || n[0].Name() != "email" || n[1].Name() != "webhook" {
		t.Errorf("notifiers = %v", n)
	}
}
