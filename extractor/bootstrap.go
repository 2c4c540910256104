package extractor

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/use-agent/statuswatch/driver"
	"github.com/use-agent/statuswatch/models"
)

var (
	usernameSelector    = driver.CSS("input[name=userName]")
	passwordSelector    = driver.CSS("input[name=password]")
	loginButtonSelector = driver.XPath("//button[contains(@class, 'loginButton')]")
	buttonSelector      = driver.XPath("//button")
)

// windowOptionSelector matches the filter entry whose text is exactly label.
func windowOptionSelector(label string) driver.Selector {
	return driver.XPath(fmt.Sprintf("//*[text()=%s]", xpathLiteral(label)))
}

// applySelector matches confirmation buttons containing label.
func applySelector(label string) driver.Selector {
	return driver.XPath(fmt.Sprintf("//button[contains(text(),%s)]", xpathLiteral(label)))
}

// xpathLiteral quotes s as an XPath 1.0 string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// errFilterNotApplied marks a degraded reporting window. It never fails a run.
var errFilterNotApplied = errors.New("reporting window filter not applied")

// Bootstrapper signs in to the portal and prepares the dashboard.
type Bootstrapper struct {
	d     driver.Driver
	clock Clock
	opts  Options
}

func NewBootstrapper(d driver.Driver, clock Clock, opts Options) *Bootstrapper {
	return &Bootstrapper{d: d, clock: clock, opts: opts.withDefaults()}
}

// Bootstrap signs in, opens the dashboard and applies the reporting window.
// Sign-in and navigation failures are returned as errors; a filter failure
// is returned as a warning and extraction continues on the default window.
func (b *Bootstrapper) Bootstrap() ([]Warning, error) {
	if err := b.SignIn(); err != nil {
		return nil, err
	}
	if err := b.OpenDashboard(); err != nil {
		return nil, err
	}
	if err := b.ApplyWindow(); err != nil {
		slog.Warn("continuing with default reporting window", "error", err)
		return []Warning{{Kind: WarningFilterApplication, Message: err.Error()}}, nil
	}
	return nil, nil
}

// SignIn submits the credential form and waits for it to go away.
func (b *Bootstrapper) SignIn() error {
	if err := b.d.Navigate(b.opts.LoginURL); err != nil {
		return models.NewExtractError(models.ErrCodeNavigation, "login page unreachable", err)
	}

	if !waitUntil(b.clock, b.opts.LoginTimeout, b.opts.PollInterval, b.loginFormPresent) {
		return models.NewExtractError(models.ErrCodeNavigation, "login form did not render", nil)
	}

	if err := b.fill(usernameSelector, b.opts.Username); err != nil {
		return models.NewExtractError(models.ErrCodeAuthentication, "cannot enter username", err)
	}
	if err := b.fill(passwordSelector, b.opts.Password); err != nil {
		return models.NewExtractError(models.ErrCodeAuthentication, "cannot enter password", err)
	}
	button, err := first(b.d, loginButtonSelector)
	if err != nil {
		return models.NewExtractError(models.ErrCodeAuthentication, "login button not found", err)
	}
	if err := button.Click(); err != nil {
		return models.NewExtractError(models.ErrCodeAuthentication, "login button not clickable", err)
	}

	gone := waitUntil(b.clock, b.opts.LoginTimeout, b.opts.PollInterval, func() bool {
		return !b.loginFormPresent()
	})
	if !gone {
		return models.NewExtractError(
			models.ErrCodeAuthentication,
			fmt.Sprintf("login form still present after %s", b.opts.LoginTimeout),
			nil,
		)
	}
	slog.Info("portal sign-in succeeded")
	return nil
}

// OpenDashboard loads the terminal table. Landing back on the login form
// means the session was not accepted.
func (b *Bootstrapper) OpenDashboard() error {
	if err := b.d.Navigate(b.opts.DashboardURL); err != nil {
		return models.NewExtractError(models.ErrCodeNavigation, "dashboard unreachable", err)
	}
	if b.loginFormPresent() {
		return models.NewExtractError(models.ErrCodeNavigation, "dashboard redirected to login", nil)
	}
	return nil
}

// ApplyWindow opens the window filter, picks WindowLabel and confirms it.
// On failure it presses Escape to close a half-open popover.
func (b *Bootstrapper) ApplyWindow() error {
	b.clock.Sleep(b.opts.FilterSettle)

	if err := b.applyWindow(); err != nil {
		if escErr := b.d.PressEscape(); escErr != nil {
			slog.Debug("escape after filter failure", "error", escErr)
		}
		return err
	}

	b.clock.Sleep(b.opts.FilterSettle)
	slog.Info("reporting window applied", "window", b.opts.WindowLabel)
	return nil
}

func (b *Bootstrapper) applyWindow() error {
	buttons, err := b.d.FindAll(buttonSelector)
	if err != nil {
		return fmt.Errorf("%w: %v", errFilterNotApplied, err)
	}

	opened := false
	for _, btn := range buttons {
		text, err := btn.Text()
		if err != nil || !matchesTrigger(text, b.opts.FilterTriggers) {
			continue
		}
		_ = btn.ScrollIntoView()
		b.clock.Sleep(b.opts.ScrollSettle)
		if err := btn.Click(); err != nil {
			continue
		}
		opened = true
		break
	}
	if !opened {
		return fmt.Errorf("%w: no control labelled %s", errFilterNotApplied, strings.Join(b.opts.FilterTriggers, "/"))
	}
	b.clock.Sleep(b.opts.ScrollSettle)

	option, err := first(b.d, windowOptionSelector(b.opts.WindowLabel))
	if err != nil {
		return fmt.Errorf("%w: option %q: %v", errFilterNotApplied, b.opts.WindowLabel, err)
	}
	if err := option.Click(); err != nil {
		return fmt.Errorf("%w: option %q: %v", errFilterNotApplied, b.opts.WindowLabel, err)
	}
	b.clock.Sleep(b.opts.ScrollSettle)

	applies, err := b.d.FindAll(applySelector(b.opts.ApplyLabel))
	if err != nil {
		return fmt.Errorf("%w: %v", errFilterNotApplied, err)
	}
	for _, a := range applies {
		if visible, _ := a.Visible(); !visible {
			continue
		}
		if err := a.Click(); err != nil {
			return fmt.Errorf("%w: apply: %v", errFilterNotApplied, err)
		}
		return nil
	}
	return fmt.Errorf("%w: no visible %q button", errFilterNotApplied, b.opts.ApplyLabel)
}

func (b *Bootstrapper) loginFormPresent() bool {
	nodes, err := b.d.FindAll(passwordSelector)
	return err == nil && len(nodes) > 0
}

func (b *Bootstrapper) fill(sel driver.Selector, value string) error {
	n, err := first(b.d, sel)
	if err != nil {
		return err
	}
	return n.Input(value)
}

// first returns the first node matching sel.
func first(d driver.Driver, sel driver.Selector) (driver.Node, error) {
	nodes, err := d.FindAll(sel)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no element matches %s", sel)
	}
	return nodes[0], nil
}

// matchesTrigger reports whether any trigger occurs in s as whole words:
// "Day" matches "Last 1 Day" but neither "Today" nor "Last 7 Days".
func matchesTrigger(s string, triggers []string) bool {
	words := labelWords(s)
	for _, t := range triggers {
		want := labelWords(t)
		if len(want) == 0 {
			continue
		}
		for i := 0; i+len(want) <= len(words); i++ {
			if slices.Equal(words[i:i+len(want)], want) {
				return true
			}
		}
	}
	return false
}

func labelWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
