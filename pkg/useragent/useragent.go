// Package useragent normalizes raw User-Agent header values and recognizes
// automated clients.
package useragent

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// MaxLength is the number of runes kept by Normalize.
const MaxLength = 255

// dropInvalid removes ill-formed UTF-8 sequences. runes.Remove sees each
// invalid byte as utf8.RuneError.
var dropInvalid = runes.Remove(runes.Predicate(func(r rune) bool {
	return r == utf8.RuneError
}))

// Sanitize returns ua with invalid UTF-8 byte sequences dropped and
// surrounding whitespace trimmed. It never fails: input that cannot be
// transformed is returned with invalid sequences stripped by the stdlib.
func Sanitize(ua string) string {
	if utf8.ValidString(ua) {
		return strings.TrimSpace(ua)
	}
	out, _, err := transform.String(dropInvalid, ua)
	if err != nil {
		out = strings.ToValidUTF8(ua, "")
	}
	return strings.TrimSpace(out)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Normalize sanitizes ua and bounds it to MaxLength runes, the form stored
// on visitor records.
func Normalize(ua string) string {
	return Truncate(Sanitize(ua), MaxLength)
}

// botKeywords are lower-case fragments found in crawler, preview and
// monitoring agents.
var botKeywords = []string{
	"bot", "spider", "crawler", "archiver", "slurp", "lighthouse", "yeti", "sogou",
	"facebookexternalhit", "embedly", "whatsapp", "telegram", "discord", "skypeuripreview",
	"headlesschrome", "phantomjs", "python-requests", "python-urllib", "curl/", "wget/",
	"go-http-client", "okhttp", "scrapy", "httpclient", "fetcher", "scraper", "validator",
}

// IsBot reports whether ua looks like an automated client.
// An empty agent is treated as a bot: real browsers always send one.
func IsBot(ua string) bool {
	lower := strings.ToLower(Sanitize(ua))
	if lower == "" {
		return true
	}
	for _, kw := range botKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var botNameMap = map[string]string{
	"googlebot":           "Googlebot",
	"bingbot":             "Bingbot",
	"yandexbot":           "Yandexbot",
	"baiduspider":         "Baiduspider",
	"duckduckbot":         "DuckDuckBot",
	"twitterbot":          "Twitterbot",
	"facebookexternalhit": "Facebook",
	"linkedinbot":         "Linkedinbot",
	"slackbot":            "Slackbot",
	"telegrambot":         "Telegrambot",
	"adsbot":              "AdsBot",
}

var botNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([a-z0-9\-_]+bot)`),
	regexp.MustCompile(`(?i)([a-z0-9\-_]+spider)`),
	regexp.MustCompile(`(?i)([a-z0-9\-_]+crawler)`),
}

// BotName returns a display name for a crawler agent, or an empty string
// when ua is not recognized as a bot.
func BotName(ua string) string {
	if !IsBot(ua) {
		return ""
	}
	lower := strings.ToLower(ua)
	for keyword, name := range botNameMap {
		if strings.Contains(lower, keyword) {
			return name
		}
	}
	for _, pattern := range botNamePatterns {
		if m := pattern.FindStringSubmatch(ua); len(m) > 1 {
			return cases.Title(language.English).String(strings.ToLower(m[1]))
		}
	}
	return "Unknown Bot"
}
