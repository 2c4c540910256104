package extractor

import (
	"errors"
	"testing"

	"github.com/use-agent/statuswatch/models"
)

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Last 1 Day", "'Last 1 Day'"},
		{"Today's", `"Today's"`},
		{`a'b"c`, `concat('a', "'", 'b"c')`},
	}
	for _, tt := range tests {
		if got := xpathLiteral(tt.in); got != tt.want {
			t.Errorf("xpathLiteral(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBootstrap_HappyPath(t *testing.T) {
	portal := threePagePortal()
	warnings, err := NewBootstrapper(portal, newFakeClock(), testOptions()).Bootstrap()
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %+v", warnings)
	}
	if !portal.signedIn || !portal.filtered || portal.url != testDashboardURL {
		t.Errorf("portal state: signedIn=%v filtered=%v url=%s", portal.signedIn, portal.filtered, portal.url)
	}
}

func TestBootstrap_LoginPageUnreachable(t *testing.T) {
	portal := threePagePortal()
	opts := testOptions()
	opts.LoginURL = ""

	_, err := NewBootstrapper(portal, newFakeClock(), opts).Bootstrap()
	if models.CodeOf(err) != models.ErrCodeNavigation {
		t.Fatalf("error = %v, want navigation failure", err)
	}
}

func TestBootstrap_DashboardRedirectsToLogin(t *testing.T) {
	portal := threePagePortal()
	b := NewBootstrapper(portal, newFakeClock(), testOptions())
	if err := b.SignIn(); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	// Session dropped between sign-in and the dashboard visit.
	portal.signedIn = false
	err := b.OpenDashboard()
	if models.CodeOf(err) != models.ErrCodeNavigation {
		t.Fatalf("OpenDashboard error = %v, want navigation failure", err)
	}
}

func TestApplyWindow_MissingOptionPressesEscape(t *testing.T) {
	portal := newDashboard(twoRowPages(1)...)
	opts := testOptions()
	opts.WindowLabel = "Last 7 Days"

	err := NewBootstrapper(portal, newFakeClock(), opts).ApplyWindow()
	if !errors.Is(err, errFilterNotApplied) {
		t.Fatalf("error = %v, want errFilterNotApplied", err)
	}
	if portal.escapes != 1 || portal.filterOpen {
		t.Errorf("escapes = %d, filterOpen = %v", portal.escapes, portal.filterOpen)
	}
}

func TestApplyWindow_TriggerLabels(t *testing.T) {
	portal := newDashboard(twoRowPages(1)...)
	opts := testOptions()
	opts.FilterTriggers = []string{"Week"}

	err := NewBootstrapper(portal, newFakeClock(), opts).ApplyWindow()
	if !errors.Is(err, errFilterNotApplied) {
		t.Fatalf("error = %v, want errFilterNotApplied", err)
	}
	if portal.filtered {
		t.Error("filter should not be applied through an unknown trigger")
	}
}

func TestApplyWindow_SkipsLookalikeTriggers(t *testing.T) {
	portal := newDashboard(twoRowPages(1)...)
	portal.decoys = []string{"Today", "Last 7 Days"}

	if err := NewBootstrapper(portal, newFakeClock(), testOptions()).ApplyWindow(); err != nil {
		t.Fatalf("ApplyWindow: %v", err)
	}
	if portal.decoyClicks != 0 {
		t.Errorf("clicked %d look-alike buttons", portal.decoyClicks)
	}
	if !portal.filtered {
		t.Error("filter not applied")
	}
}

func TestMatchesTrigger(t *testing.T) {
	triggers := []string{"Day", "MTD"}
	tests := []struct {
		text string
		want bool
	}{
		{"Last 1 Day", true},
		{"Day", true},
		{" MTD ▾", true},
		{"Today", false},
		{"Last 7 Days", false},
		{"MTDs", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := matchesTrigger(tt.text, triggers); got != tt.want {
			t.Errorf("matchesTrigger(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if !matchesTrigger("Period: Last 1 Day", []string{"Last 1 Day"}) {
		t.Error("multi-word trigger should match as a phrase")
	}
}
