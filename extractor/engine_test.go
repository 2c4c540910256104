package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/use-agent/statuswatch/driver"
	"github.com/use-agent/statuswatch/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openerFor(p *fakePortal) Opener {
	return func(context.Context) (driver.Driver, error) {
		p.url = ""
		return p, nil
	}
}

// threePagePortal has six rows over three pages. KIT001 appears on pages 1
// and 3, and the second row of page 2 never shows an identifier.
func threePagePortal() *fakePortal {
	return &fakePortal{
		counter: "1–6 of 6",
		pages: [][]fakeTerminal{
			{
				{label: "Cmdo 1ª Bda Inf Sl", id: "KIT001", color: "#4caf50"},
				{label: "Cmdo 2º GPT E", id: "KIT002", color: "#f44336"},
			},
			{
				{label: "Cmdo 12ª RM", id: "KIT003", color: "green"},
				{label: "Cmdo 8º BEC", color: "#ffb300"},
			},
			{
				{label: "Cmdo 1ª Bda Inf Sl (reserva)", id: "KIT001", color: "#4caf50"},
				{label: "Cmdo 16ª Bda Inf Sl", id: "KITP006", color: "#00e676"},
			},
		},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	portal := threePagePortal()
	clock := newFakeClock()
	res := New(testOptions(), openerFor(portal), WithClock(clock)).Run(context.Background())

	if res.Failed() {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if res.ExpectedTotal != 6 || res.ActualTotal != 5 {
		t.Fatalf("expected/actual = %d/%d, want 6/5", res.ExpectedTotal, res.ActualTotal)
	}
	if res.PagesVisited != 3 {
		t.Errorf("pages visited = %d, want 3", res.PagesVisited)
	}

	want := []struct {
		label, id string
		state     State
	}{
		{"Cmdo 1ª Bda Inf Sl", "KIT001", StateOnline},
		{"Cmdo 2º GPT E", "KIT002", StateOffline},
		{"Cmdo 12ª RM", "KIT003", StateOnline},
		{"Cmdo 8º BEC", "", StateWarning},
		{"Cmdo 16ª Bda Inf Sl", "KITP006", StateOnline},
	}
	for i, w := range want {
		got := res.Records[i]
		if got.Label() != w.label || got.StableID() != w.id || got.State() != w.state {
			t.Errorf("record %d = %s, want %s (%s) [%s]", i, got, w.label, w.id, w.state)
		}
	}

	if !hasWarning(res, WarningTotalMismatch) {
		t.Errorf("missing total mismatch warning: %+v", res.Warnings)
	}
	if hasWarning(res, WarningFilterApplication) || hasWarning(res, WarningPaginationStall) {
		t.Errorf("unexpected warnings: %+v", res.Warnings)
	}
	if !portal.filtered {
		t.Error("reporting window was not applied")
	}
	if portal.user != "ops@example.com" || portal.pass != "secret" {
		t.Errorf("credentials entered = %q/%q", portal.user, portal.pass)
	}
	if portal.closes != 1 {
		t.Errorf("session closed %d times, want 1", portal.closes)
	}
	if res.Duration <= 0 {
		t.Error("duration should come from the injected clock")
	}
}

func TestRun_LoginFormNeverDisappears(t *testing.T) {
	portal := threePagePortal()
	portal.rejectLogin = true
	clock := newFakeClock()

	res := New(testOptions(), openerFor(portal), WithClock(clock)).Run(context.Background())

	if !res.Failed() {
		t.Fatal("expected a failure entry")
	}
	if len(res.Records) != 0 || res.ActualTotal != 0 {
		t.Errorf("records = %v, want none", res.Records)
	}
	if res.Failure.Code != models.ErrCodeAuthentication {
		t.Errorf("failure code = %q, want %q", res.Failure.Code, models.ErrCodeAuthentication)
	}
	if !strings.Contains(res.Failure.Message, "login form still present") {
		t.Errorf("failure message = %q", res.Failure.Message)
	}
	if portal.closes != 1 {
		t.Errorf("session closed %d times, want 1", portal.closes)
	}
	if clock.slept < testOptions().LoginTimeout {
		t.Errorf("gave up after %s, before the login timeout", clock.slept)
	}
}

func TestRun_OpenFailure(t *testing.T) {
	open := func(context.Context) (driver.Driver, error) {
		return nil, models.NewExtractError(models.ErrCodeBrowserCrash, "failed to launch browser", errors.New("exec: chromium not found"))
	}
	res := New(testOptions(), open, WithClock(newFakeClock())).Run(context.Background())

	if !res.Failed() || res.Failure.Code != models.ErrCodeBrowserCrash {
		t.Fatalf("failure = %+v", res.Failure)
	}
	if res.Failure.Message != "failed to launch browser: exec: chromium not found" {
		t.Errorf("message = %q", res.Failure.Message)
	}
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	portal := threePagePortal()
	portal.panicOn = nextPageSelector.Expr

	res := New(testOptions(), openerFor(portal), WithClock(newFakeClock())).Run(context.Background())

	if !res.Failed() || res.Failure.Code != models.ErrCodePanic {
		t.Fatalf("failure = %+v", res.Failure)
	}
	if len(res.Records) != 0 {
		t.Errorf("records should be discarded, got %d", len(res.Records))
	}
	if portal.closes != 1 {
		t.Errorf("session closed %d times, want 1", portal.closes)
	}
}

func TestRun_MissingFilterIsWarning(t *testing.T) {
	portal := threePagePortal()
	portal.noFilter = true

	res := New(testOptions(), openerFor(portal), WithClock(newFakeClock())).Run(context.Background())

	if res.Failed() {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if !hasWarning(res, WarningFilterApplication) {
		t.Errorf("missing filter warning: %+v", res.Warnings)
	}
	if portal.escapes != 1 {
		t.Errorf("escape pressed %d times, want 1", portal.escapes)
	}
	if res.ActualTotal != 5 {
		t.Errorf("actual = %d, want 5", res.ActualTotal)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	portal := threePagePortal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(testOptions(), openerFor(portal), WithClock(newFakeClock())).Run(ctx)
	if !res.Failed() || res.Failure.Code != models.ErrCodeTimeout {
		t.Fatalf("failure = %+v", res.Failure)
	}
}

func TestRun_StatesAlwaysFromEnum(t *testing.T) {
	portal := threePagePortal()
	portal.pages[0][1].indicators = 1

	res := New(testOptions(), openerFor(portal), WithClock(newFakeClock())).Run(context.Background())
	for _, rec := range res.Records {
		switch rec.State() {
		case StateOnline, StateOffline, StateWarning, StateUnknown:
		default:
			t.Errorf("record %s has state outside the enumeration", rec)
		}
	}
	if got := res.Count(StateUnknown); got != 1 {
		t.Errorf("unknown count = %d, want 1", got)
	}
}

func TestRunResult_Snapshot(t *testing.T) {
	portal := threePagePortal()
	res := New(testOptions(), openerFor(portal), WithClock(newFakeClock())).Run(context.Background())

	snap := res.Snapshot()
	if len(snap.Records) != 5 || snap.ExpectedTotal != 6 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Records[3].StableID != "" || snap.Records[3].State != "WARNING" {
		t.Errorf("record 3 = %+v", snap.Records[3])
	}
	if snap.CountState("ONLINE") != 3 {
		t.Errorf("online = %d, want 3", snap.CountState("ONLINE"))
	}
	if len(snap.Warnings) == 0 || snap.Warnings[0].Kind != string(WarningTotalMismatch) {
		t.Errorf("warnings = %+v", snap.Warnings)
	}
}

func hasWarning(res *RunResult, kind WarningKind) bool {
	for _, w := range res.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

func TestRun_RunTimeoutBoundsBlockedHover(t *testing.T) {
	portal := threePagePortal()
	opts := testOptions()
	opts.RunTimeout = 50 * time.Millisecond
	open := func(ctx context.Context) (driver.Driver, error) {
		portal.url = ""
		portal.hoverGate = ctx
		return portal, nil
	}

	done := make(chan *RunResult, 1)
	go func() {
		done <- New(opts, open, WithClock(newFakeClock())).Run(context.Background())
	}()

	select {
	case res := <-done:
		if !res.Failed() || res.Failure.Code != models.ErrCodeTimeout {
			t.Fatalf("failure = %+v, want %s", res.Failure, models.ErrCodeTimeout)
		}
		if len(res.Records) != 0 {
			t.Errorf("records = %d, want none on a failed run", len(res.Records))
		}
		if portal.closes != 1 {
			t.Errorf("session closed %d times, want 1", portal.closes)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after its deadline")
	}
}

func TestRun_DateTextIsNotTheTotal(t *testing.T) {
	portal := threePagePortal()
	portal.counter = "1–5 of 5"
	portal.notes = []string{"Última atualização: 19 de outubro de 2026", "Dados de 2025"}

	res := New(testOptions(), openerFor(portal), WithClock(newFakeClock())).Run(context.Background())
	if res.Failed() {
		t.Fatalf("unexpected failure: %+v", res.Failure)
	}
	if res.ExpectedTotal != 5 || res.ActualTotal != 5 {
		t.Errorf("expected/actual = %d/%d, want 5/5", res.ExpectedTotal, res.ActualTotal)
	}
	if hasWarning(res, WarningTotalMismatch) {
		t.Errorf("unexpected total mismatch: %+v", res.Warnings)
	}
}
