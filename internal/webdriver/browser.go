package webdriver

import (
	"errors"
	"fmt"
	"strings"
)

// Browser is a browser name as understood by WebDriver grids.
type Browser string

const (
	Chrome           Browser = "chrome"
	Firefox          Browser = "firefox"
	Safari           Browser = "safari"
	Edge             Browser = "MicrosoftEdge"
	InternetExplorer Browser = "internet explorer"
)

// Well known capability names.
const (
	CapabilityName        = "name"
	CapabilityBrowserName = "browserName"
	CapabilityBuild       = "build"
	CapabilityTags        = "tags"
)

var (
	ErrNoSuchElement      = errors.New("no such element")
	ErrNoSuchWindow       = errors.New("no such window")
	ErrNoSuchFrame        = errors.New("no such frame")
	ErrNoSuchCookie       = errors.New("no such cookie")
	ErrUnsupportedBrowser = errors.New("unsupported browser")
)

var browserAliases = map[string]Browser{
	"chrome":            Chrome,
	"googlechrome":      Chrome,
	"firefox":           Firefox,
	"ff":                Firefox,
	"safari":            Safari,
	"webkit":            Safari,
	"edge":              Edge,
	"microsoftedge":     Edge,
	"ie":                InternetExplorer,
	"internetexplorer":  InternetExplorer,
	"internet explorer": InternetExplorer,
}

// ParseBrowser maps a loosely written browser name to a Browser.
func ParseBrowser(name string) (Browser, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if b, ok := browserAliases[key]; ok {
		return b, nil
	}
	if b, ok := browserAliases[strings.ReplaceAll(key, " ", "")]; ok {
		return b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBrowser, name)
}

func (b Browser) String() string {
	return string(b)
}

// Capabilities are the desired capabilities sent when a session is created.
type Capabilities map[string]any

// Clone returns a shallow copy.
func (c Capabilities) Clone() Capabilities {
	out := make(Capabilities, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Name returns the display name capability, if set.
func (c Capabilities) Name() string {
	name, _ := c[CapabilityName].(string)
	return name
}
