// Package target turns configuration and a test identity into a session
// description and builds sessions from it.
package target

import (
	"context"
	"fmt"
	"net/url"

	"github.com/luispater/webtest/internal/browser"
	"github.com/luispater/webtest/internal/browser/chrome"
	"github.com/luispater/webtest/internal/browser/remote"
	"github.com/luispater/webtest/internal/config"
	"github.com/luispater/webtest/internal/webdriver"
	log "github.com/sirupsen/logrus"
)

// Target describes the session a test wants: browser, capabilities and
// whether it runs on the grid.
type Target struct {
	test    string
	browser webdriver.Browser
	remote  bool
	caps    webdriver.Capabilities
	cfg     *config.AppConfig
}

// New derives a target for test from cfg. The display name defaults to the
// test identity.
func New(cfg *config.AppConfig, test string) (*Target, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	b, err := webdriver.ParseBrowser(cfg.Browser)
	if err != nil {
		return nil, err
	}

	caps := webdriver.Capabilities{}
	for k, v := range cfg.Capabilities {
		caps[k] = v
	}
	caps[webdriver.CapabilityBrowserName] = string(b)
	if test != "" {
		caps[webdriver.CapabilityName] = test
	}
	if cfg.Remote {
		if cfg.Grid.Build != "" {
			caps[webdriver.CapabilityBuild] = cfg.Grid.Build
		}
		if len(cfg.Grid.Tags) > 0 {
			caps[webdriver.CapabilityTags] = cfg.Grid.Tags
		}
	}

	return &Target{
		test:    test,
		browser: b,
		remote:  cfg.Remote,
		caps:    caps,
		cfg:     cfg,
	}, nil
}

func (t *Target) Test() string               { return t.test }
func (t *Target) IsRemote() bool             { return t.remote }
func (t *Target) Browser() webdriver.Browser { return t.browser }

// Capabilities returns a copy of the desired capabilities.
func (t *Target) Capabilities() webdriver.Capabilities {
	return t.caps.Clone()
}

// SetCapability changes a desired capability. It has no effect on sessions
// already built.
func (t *Target) SetCapability(name string, value any) {
	t.caps[name] = value
}

// GridURL returns the grid endpoint with the credentials embedded as userinfo.
func (t *Target) GridURL() (string, error) {
	u, err := url.Parse(t.cfg.Grid.URL)
	if err != nil {
		return "", fmt.Errorf("invalid grid url: %w", err)
	}
	if t.cfg.Grid.Username != "" {
		u.User = url.UserPassword(t.cfg.Grid.Username, t.cfg.Grid.AccessKey)
	}
	return u.String(), nil
}

// Build starts a session for the target and applies the configured timeouts.
func (t *Target) Build(ctx context.Context) (webdriver.Session, error) {
	s, err := t.build(ctx)
	if err != nil {
		return nil, err
	}
	if err = applyTimeouts(s, t.cfg.Timeouts); err != nil {
		_ = s.Quit()
		return nil, fmt.Errorf("failed to apply timeouts: %w", err)
	}
	return s, nil
}

func (t *Target) build(ctx context.Context) (webdriver.Session, error) {
	if t.remote {
		gridURL, err := t.GridURL()
		if err != nil {
			return nil, err
		}
		log.Debugf("Creating remote %s session for %s", t.browser, t.test)
		return remote.NewSession(t.Capabilities(), gridURL)
	}

	log.Debugf("Launching local %s session for %s", t.browser, t.test)
	switch t.browser {
	case webdriver.Chrome:
		return chrome.Launch(ctx, chrome.Options{
			ExecPath:    t.cfg.Chrome.ExecPath,
			Headless:    t.cfg.Headless,
			UserDataDir: t.cfg.Chrome.UserDataDir,
			UserAgent:   t.cfg.Chrome.UserAgent,
			Args:        t.cfg.Chrome.Args,
		})
	case webdriver.Firefox, webdriver.Safari, webdriver.Edge:
		return browser.Launch(t.playwrightOptions(), t.browser)
	}
	return nil, fmt.Errorf("%w: %s cannot run locally", webdriver.ErrUnsupportedBrowser, t.browser)
}

func (t *Target) playwrightOptions() browser.Options {
	return browser.Options{
		Headless:       t.cfg.Headless,
		ExecutablePath: t.cfg.Playwright.ExecPath,
		Args:           t.cfg.Playwright.Args,
	}
}

func applyTimeouts(s webdriver.Session, cfg config.AppConfigTimeouts) error {
	timeouts := s.Manage().Timeouts()
	if cfg.ImplicitWait > 0 {
		if err := timeouts.ImplicitlyWait(cfg.ImplicitWait); err != nil {
			return err
		}
	}
	if cfg.PageLoad > 0 {
		if err := timeouts.PageLoadTimeout(cfg.PageLoad); err != nil {
			return err
		}
	}
	if cfg.Script > 0 {
		if err := timeouts.SetScriptTimeout(cfg.Script); err != nil {
			return err
		}
	}
	return nil
}
