package quirks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCapabilities is returned when a descriptor cannot select a variant.
var ErrInvalidCapabilities = errors.New("quirks: invalid capabilities")

// Capabilities describes the browser session a capture runs against.
type Capabilities struct {
	Platform     string `yaml:"platform" json:"platform,omitempty"`
	Browser      string `yaml:"browser" json:"browser,omitempty"`
	Version      string `yaml:"version" json:"version,omitempty"`
	DeviceName   string `yaml:"device_name" json:"deviceName,omitempty"`
	HeaderHeight *int   `yaml:"header_height" json:"headerHeight,omitempty"`
	FooterHeight *int   `yaml:"footer_height" json:"footerHeight,omitempty"`
	Tabs         bool   `yaml:"tabs" json:"tabs,omitempty"`
}

// String is a stable label for logs and storage keys.
func (c Capabilities) String() string {
	parts := []string{lower(c.Browser), c.Version, lower(c.Platform), c.DeviceName}
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "default"
	}
	return strings.Join(out, "_")
}

// ForCapabilities selects the variant for a session.
func ForCapabilities(c Capabilities) (Quirks, error) {
	browser := lower(c.Browser)
	platform := lower(c.Platform)

	switch {
	case browser == "internet explorer" && strings.HasPrefix(c.Version, "7"):
		return IE7{}, nil
	case platform == "android":
		return Android{}, nil
	case browser == "safari" && platform != "mac":
		return forIOS(c)
	}
	return Desktop{}, nil
}

func forIOS(c Capabilities) (Quirks, error) {
	if c.DeviceName == "" {
		return nil, fmt.Errorf("%w: device name is required for iOS devices", ErrInvalidCapabilities)
	}
	if c.HeaderHeight == nil {
		return nil, fmt.Errorf("%w: header height is required for %s", ErrInvalidCapabilities, c.DeviceName)
	}
	switch {
	case strings.Contains(c.DeviceName, "iPad"):
		return IPad{Header: *c.HeaderHeight, Tabs: c.Tabs}, nil
	case strings.Contains(c.DeviceName, "iPhone"):
		if c.FooterHeight == nil {
			return nil, fmt.Errorf("%w: footer height is required for %s", ErrInvalidCapabilities, c.DeviceName)
		}
		return IPhone{Header: *c.HeaderHeight, Footer: *c.FooterHeight}, nil
	}
	return nil, fmt.Errorf("%w: unknown device %q", ErrInvalidCapabilities, c.DeviceName)
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
