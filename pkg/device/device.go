// Package device turns raw User-Agent strings into short human-readable
// labels for logs and audit trails.
package device

import (
	"github.com/mssola/useragent"
)

// ParseUserAgent returns a display label like "Chrome on Mac OS X". Unknown
// parts fall back to generic names so the label is always printable.
func ParseUserAgent(raw string) string {
	if raw == "" {
		return "Unknown Device"
	}

	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	os := ua.OSInfo().Name
	if platform := ua.Platform(); platform != "" && platform != os {
		if os == "" {
			os = platform
		} else {
			os = os + " (" + platform + ")"
		}
	}
	if os == "" {
		os = "Unknown OS"
	}

	return browser + " on " + os
}
