package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"
)

func TestSelectorString(t *testing.T) {
	if got := CSS("td").String(); got != "css(td)" {
		t.Errorf("CSS string = %q", got)
	}
	if got := XPath(".//svg").String(); got != "xpath(.//svg)" {
		t.Errorf("XPath string = %q", got)
	}
	if CSS("td").XPath || !XPath("//tr").XPath {
		t.Error("selector kind mismatch")
	}
}

func TestIsTelemetryHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"google-analytics.com", true},
		{"www.google-analytics.com", true},
		{"o123.ingest.sentry.io", true},
		{"SEGMENT.IO", true},
		{"sport.pulsarconnect.io", false},
		{"analytics.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isTelemetryHost(tt.host); got != tt.want {
			t.Errorf("isTelemetryHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("https://sport.pulsarconnect.io:443/login"); got != "sport.pulsarconnect.io" {
		t.Errorf("hostOf = %q", got)
	}
	if got := hostOf("::bad"); got != "::bad" {
		t.Errorf("hostOf(unparsable) = %q", got)
	}
}

func TestRodNodeBound(t *testing.T) {
	base := (&rod.Element{}).Context(context.Background())

	n := rodNode{el: base, timeout: 20 * time.Millisecond}
	el, release := n.bound()
	if _, ok := el.GetContext().Deadline(); !ok {
		t.Fatal("bounded element has no deadline")
	}
	select {
	case <-el.GetContext().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("action context outlived its timeout")
	}
	if !errors.Is(el.GetContext().Err(), context.DeadlineExceeded) {
		t.Errorf("ctx err = %v, want deadline exceeded", el.GetContext().Err())
	}
	release()
	if base.GetContext().Err() != nil {
		t.Error("session context must survive an action timeout")
	}

	unbounded, release := rodNode{el: base}.bound()
	defer release()
	if _, ok := unbounded.GetContext().Deadline(); ok {
		t.Error("zero timeout should leave the element unbounded")
	}
}
