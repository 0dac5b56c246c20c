package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/luispater/webtest/internal/webdriver"
)

// DefaultPath is used when WEBTEST_CONFIG is not set.
const DefaultPath = "webtest.yaml"

// AppConfig holds the application configuration.
type AppConfig struct {
	Version      string            `yaml:"version"`
	Debug        bool              `yaml:"debug"`
	Browser      string            `yaml:"browser"`
	Remote       bool              `yaml:"remote"`
	Headless     bool              `yaml:"headless"`
	Chrome       AppConfigChrome   `yaml:"chrome"`
	Playwright   AppConfigBrowser  `yaml:"playwright"`
	Capabilities map[string]any    `yaml:"capabilities,omitempty"`
	Grid         AppConfigGrid     `yaml:"grid"`
	Timeouts     AppConfigTimeouts `yaml:"timeouts"`
	Smoke        AppConfigSmoke    `yaml:"smoke"`
}

type AppConfigChrome struct {
	ExecPath    string   `yaml:"exec-path"`
	Args        []string `yaml:"args"`
	UserDataDir string   `yaml:"user-data-dir,omitempty"`
	UserAgent   string   `yaml:"user-agent,omitempty"`
}

// AppConfigBrowser configures local Firefox, Safari and Edge launched
// through playwright.
type AppConfigBrowser struct {
	ExecPath string   `yaml:"exec-path"`
	Args     []string `yaml:"args"`
}

// AppConfigGrid describes the remote WebDriver grid and its reporting API.
type AppConfigGrid struct {
	URL       string   `yaml:"url"`
	Username  string   `yaml:"username"`
	AccessKey string   `yaml:"access-key"`
	APIURL    string   `yaml:"api-url"`
	AppURL    string   `yaml:"app-url"`
	ProxyURL  string   `yaml:"proxy-url"`
	Build     string   `yaml:"build,omitempty"`
	Tags      []string `yaml:"tags,omitempty"`
}

type AppConfigTimeouts struct {
	ImplicitWait time.Duration `yaml:"implicit-wait"`
	PageLoad     time.Duration `yaml:"page-load"`
	Script       time.Duration `yaml:"script"`
}

type AppConfigSmoke struct {
	URLs []string `yaml:"urls"`
	// Scenarios is a directory of YAML workflow files, each run in its own session.
	Scenarios string `yaml:"scenarios"`
	Workers   int    `yaml:"workers"`
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	return &AppConfig{
		Browser:  string(webdriver.Chrome),
		Headless: true,
		Grid: AppConfigGrid{
			URL:    "https://ondemand.saucelabs.com:443/wd/hub",
			APIURL: "https://saucelabs.com/rest/v1",
			AppURL: "https://saucelabs.com",
		},
		Timeouts: AppConfigTimeouts{
			PageLoad: 60 * time.Second,
			Script:   30 * time.Second,
		},
		Smoke: AppConfigSmoke{
			Workers: 1,
		},
	}
}

// LoadConfig loads configuration from path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func LoadConfig(path string) (*AppConfig, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err = yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err = config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Path returns the configuration file path from WEBTEST_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("WEBTEST_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("WEBTEST_BROWSER"); ok && v != "" {
		c.Browser = v
	}
	if v, ok := lookup("WEBTEST_REMOTE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WEBTEST_REMOTE: %w", err)
		}
		c.Remote = b
	}
	if v, ok := lookup("WEBTEST_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WEBTEST_HEADLESS: %w", err)
		}
		c.Headless = b
	}
	if v, ok := lookup("WEBTEST_GRID_URL"); ok && v != "" {
		c.Grid.URL = v
	}
	if v, ok := lookup("SAUCE_USERNAME"); ok && v != "" {
		c.Grid.Username = v
	}
	if v, ok := lookup("SAUCE_ACCESS_KEY"); ok && v != "" {
		c.Grid.AccessKey = v
	}
	return nil
}

// Validate checks the configuration for values no session could be built from.
func (c *AppConfig) Validate() error {
	if _, err := webdriver.ParseBrowser(c.Browser); err != nil {
		return err
	}
	if c.Remote && c.Grid.URL == "" {
		return errors.New("remote sessions require grid.url")
	}
	if c.Smoke.Workers < 0 {
		return fmt.Errorf("smoke.workers must not be negative, got %d", c.Smoke.Workers)
	}
	if c.Timeouts.ImplicitWait < 0 || c.Timeouts.PageLoad < 0 || c.Timeouts.Script < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// BrowserType returns the parsed browser. It assumes Validate succeeded.
func (c *AppConfig) BrowserType() webdriver.Browser {
	b, _ := webdriver.ParseBrowser(c.Browser)
	return b
}
