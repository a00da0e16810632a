package browser

import "strings"

// challengeTitleMarkers are page titles the anti-bot interstitials use
var challengeTitleMarkers = []string{
	"just a moment",
	"attention required",
	"checking your browser",
	"ddos-guard",
	"один момент",
	"проверка браузера",
}

// challengeBodyMarkers are markup fragments only challenge pages carry
var challengeBodyMarkers = []string{
	"cf-challenge",
	"challenge-platform",
	"cf-turnstile",
	"ddos-guard",
}

// IsChallenge reports whether a rendered page is an anti-bot
// interstitial rather than site content
func IsChallenge(title, source string) bool {
	lowerTitle := strings.ToLower(title)
	for _, marker := range challengeTitleMarkers {
		if strings.Contains(lowerTitle, marker) {
			return true
		}
	}
	lowerSource := strings.ToLower(source)
	for _, marker := range challengeBodyMarkers {
		if strings.Contains(lowerSource, marker) {
			return true
		}
	}
	return false
}
