package chrome

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"

// Options describes how the local Chrome process is started.
type Options struct {
	ExecPath    string
	Headless    bool
	UserDataDir string
	UserAgent   string
	// Args are extra command line switches in --name or --name=value form.
	Args []string
}

// Manager manages a Chrome browser instance and its contexts.
type Manager struct {
	allocator     context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	execPath      string
}

// NewManager creates a new Chromedp Manager instance.
// It initializes the allocator context but does not launch the browser yet.
func NewManager(parent context.Context, options Options) (*Manager, error) {
	if parent == nil {
		return nil, fmt.Errorf("parent context cannot be nil")
	}

	execPath := options.ExecPath
	if execPath == "" {
		execPath = os.Getenv("CHROME_BIN")
		if execPath == "" {
			log.Debug("Chrome path not specified in config or CHROME_BIN env, will attempt auto-detection.")
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(options, execPath)...)

	return &Manager{
		allocator:   allocCtx,
		allocCancel: allocCancel,
		execPath:    execPath,
	}, nil
}

func allocatorOptions(options Options, execPath string) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}

	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}

	if options.Headless {
		opts = append(opts, chromedp.Flag("headless", true))
		opts = append(opts, chromedp.Flag("disable-gpu", true))
		opts = append(opts, chromedp.WindowSize(1920, 1080))
	}

	if options.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(options.UserDataDir))
	}

	userAgent := options.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	opts = append(opts, chromedp.UserAgent(userAgent))

	for name, value := range parseArgs(options.Args) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseArgs turns --name=value switches into chromedp flags; bare switches become true.
func parseArgs(args []string) map[string]interface{} {
	flags := make(map[string]interface{})
	for _, arg := range args {
		if arg == "" {
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}

// LaunchBrowserAndContext launches the browser and creates the first tab.
func (m *Manager) LaunchBrowserAndContext() error {
	if m.allocator == nil {
		return fmt.Errorf("manager not properly initialized, allocator is nil")
	}

	browserCtx, browserCancel := chromedp.NewContext(
		m.allocator,
		chromedp.WithLogf(log.Debugf),
	)
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel

	if err := chromedp.Run(m.browserCtx); err != nil {
		_ = m.Close()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Debugf("Chromedp browser launched successfully with path: %s", m.execPath)
	return nil
}

// NewSession returns a session driving the first tab of the launched browser.
func (m *Manager) NewSession() (*Session, error) {
	if m.browserCtx == nil {
		return nil, fmt.Errorf("browser context not initialized. Call LaunchBrowserAndContext first")
	}
	return newSession(m), nil
}

func (m *Manager) Close() error {
	if m.browserCancel != nil {
		log.Debug("Cancelling Chromedp browser context...")
		m.browserCancel()
		m.browserCancel = nil
		m.browserCtx = nil
	}

	if m.allocCancel != nil {
		log.Debug("Cancelling Chromedp allocator context...")
		m.allocCancel()
		m.allocCancel = nil
		m.allocator = nil
	}

	log.Debug("Chromedp Manager closed.")
	return nil
}

// Launch starts Chrome and returns a session on its first tab.
func Launch(parent context.Context, options Options) (*Session, error) {
	m, err := NewManager(parent, options)
	if err != nil {
		return nil, err
	}
	if err = m.LaunchBrowserAndContext(); err != nil {
		return nil, err
	}
	return m.NewSession()
}

// ClearBrowserCookies clears all browser cookies.
func ClearBrowserCookies(ctx context.Context) error {
	if err := chromedp.Run(ctx, network.ClearBrowserCookies()); err != nil {
		return fmt.Errorf("failed to clear browser cookies: %w", err)
	}
	return nil
}
