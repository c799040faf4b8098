// Package device turns raw User-Agent strings into the short client
// descriptor recorded on security events.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Describe extracts a human-readable client descriptor from a User-Agent
// string. Returns format: "Browser on OS" (e.g., "Chrome on macOS",
// "Safari on iOS"), or "" for an empty input so the event field stays unset.
func Describe(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)

	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		platform := ua.Platform()
		if platform != "" && browser != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}

	return strings.TrimSpace(browser + " on " + os)
}
