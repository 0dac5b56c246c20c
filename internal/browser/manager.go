// Package browser runs local Firefox, WebKit and Edge sessions through playwright.
package browser

import (
	"errors"
	"fmt"

	"github.com/luispater/webtest/internal/webdriver"
	"github.com/playwright-community/playwright-go"
	log "github.com/sirupsen/logrus"
)

// Options describes how the local browser is launched.
type Options struct {
	Headless       bool
	ExecutablePath string
	Args           []string
}

// Manager holds the Playwright instance, browser instance, and browser context.
type Manager struct {
	pw      *playwright.Playwright
	Browser playwright.Browser
	Context playwright.BrowserContext
	options Options
}

// NewManager starts the playwright driver.
func NewManager(options Options) (*Manager, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	return &Manager{
		pw:      pw,
		options: options,
	}, nil
}

// InstallBrowsers downloads the playwright driver and the engines the given browsers need.
func InstallBrowsers(verbose bool, browsers ...webdriver.Browser) error {
	engines := make([]string, 0, len(browsers))
	for _, b := range browsers {
		switch b {
		case webdriver.Firefox:
			engines = append(engines, "firefox")
		case webdriver.Safari:
			engines = append(engines, "webkit")
		case webdriver.Edge:
			engines = append(engines, "msedge")
		}
	}
	if len(engines) == 0 {
		return nil
	}
	return playwright.Install(&playwright.RunOptions{
		Verbose:  verbose,
		Browsers: engines,
	})
}

// LaunchBrowserAndContext launches the requested browser and creates a fresh context.
func (m *Manager) LaunchBrowserAndContext(b webdriver.Browser) error {
	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.options.Headless),
	}
	if m.options.ExecutablePath != "" {
		launchOptions.ExecutablePath = playwright.String(m.options.ExecutablePath)
		log.Debugf("Attempting to launch %s from: %s", b, m.options.ExecutablePath)
	}
	if len(m.options.Args) > 0 {
		launchOptions.Args = m.options.Args
	}

	var browserType playwright.BrowserType
	switch b {
	case webdriver.Firefox:
		browserType = m.pw.Firefox
	case webdriver.Safari:
		browserType = m.pw.WebKit
	case webdriver.Edge:
		browserType = m.pw.Chromium
		launchOptions.Channel = playwright.String("msedge")
	default:
		return fmt.Errorf("%w: %s is not available through playwright", webdriver.ErrUnsupportedBrowser, b)
	}

	browser, err := browserType.Launch(launchOptions)
	if err != nil {
		return err
	}
	m.Browser = browser
	log.Debugf("Browser %s launched successfully.", b)

	context, err := m.Browser.NewContext(playwright.BrowserNewContextOptions{})
	if err != nil {
		if bErr := m.Browser.Close(); bErr != nil {
			log.Debugf("Error closing browser after context creation failed: %v", bErr)
		}
		return err
	}
	m.Context = context
	log.Debugf("Browser context created successfully.")
	return nil
}

// NewPage creates a new browser page from the existing context.
func (m *Manager) NewPage() (playwright.Page, error) {
	if m.Context == nil {
		return nil, errors.New("browser context is not initialized. Call LaunchBrowserAndContext first")
	}
	return m.Context.NewPage()
}

// NewSession opens a page and returns a session driving it.
func (m *Manager) NewSession() (*Session, error) {
	page, err := m.NewPage()
	if err != nil {
		return nil, err
	}
	return newSession(m, page), nil
}

// Close stops the Playwright instance and closes the browser and context.
func (m *Manager) Close() error {
	var firstErr error
	if m.Context != nil {
		if err := m.Context.Close(); err != nil {
			log.Debugf("Error closing browser context: %v", err)
			firstErr = err
		}
	}
	if m.Browser != nil {
		if err := m.Browser.Close(); err != nil {
			log.Debugf("Error closing browser: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			log.Debugf("Error stopping playwright: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Launch starts playwright and the browser and returns a session on a new page.
func Launch(options Options, b webdriver.Browser) (*Session, error) {
	m, err := NewManager(options)
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	if err = m.LaunchBrowserAndContext(b); err != nil {
		_ = m.Close()
		return nil, err
	}
	s, err := m.NewSession()
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return s, nil
}
