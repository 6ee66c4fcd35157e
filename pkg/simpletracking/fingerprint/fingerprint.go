// Package fingerprint turns raw request headers into a normalized client
// fingerprint. Extraction is a total function: absent or malformed input
// yields empty fields, never an error.
package fingerprint

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Fingerprint is the normalized set of facts derived from one request.
// Every field is always present; empty string means undetermined.
//
// ClientApp/ClientBuild and BrowserName/BrowserVersion are mutually
// exclusive categories: when a client application is detected the
// browser fields stay empty.
type Fingerprint struct {
	IPAddress      string
	UserAgent      string
	AcceptHeaders  string
	AcceptLanguage string
	OSName         string
	OSVersion      string
	BrowserName    string
	BrowserVersion string
	ClientApp      string
	ClientBuild    string
}

// Extract derives a fingerprint from an inbound request.
func Extract(r *http.Request) Fingerprint {
	if r == nil {
		return Fingerprint{}
	}
	ua := r.Header.Get("User-Agent")
	fp := ParseUserAgent(ua)
	fp.IPAddress = ClientIP(r)
	fp.UserAgent = ua
	fp.AcceptHeaders = r.Header.Get("Accept")
	fp.AcceptLanguage = r.Header.Get("Accept-Language")
	return fp
}

// ClientIP extracts the real client address, handling proxies: the first
// X-Forwarded-For entry wins, then X-Real-IP, then the raw connection
// address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Detection is driven by ordered rule tables evaluated top to bottom,
// stopping at the first match per category. Ordering encodes real-world
// UA ambiguity: Edge also advertises a Chrome token, Office applications
// impersonate generic browsers.

type clientAppRule struct {
	pattern *regexp.Regexp
	app     string // fixed name; empty means "Microsoft Office <captured>"
}

var clientAppRules = []clientAppRule{
	{pattern: regexp.MustCompile(`(?i)Microsoft Office\s+([\w\s]+)`)},
	{pattern: regexp.MustCompile(`(?i)Word[/\s]*([\d.]+)?`), app: "Microsoft Word"},
	{pattern: regexp.MustCompile(`(?i)Excel[/\s]*([\d.]+)?`), app: "Microsoft Excel"},
}

type osRule struct {
	contains    string
	orContains  string
	name        string
	version     string
	versionRe   *regexp.Regexp
	underscored bool // version token uses underscores instead of dots
}

var osRules = []osRule{
	{contains: "Windows NT 10", name: "Windows", version: "10/11"},
	{contains: "Windows NT 6.3", name: "Windows", version: "8.1"},
	{contains: "Windows NT 6.1", name: "Windows", version: "7"},
	{contains: "Mac OS X", name: "macOS", versionRe: regexp.MustCompile(`Mac OS X ([\d_]+)`), underscored: true},
	{contains: "Linux", name: "Linux"},
	{contains: "Android", name: "Android", versionRe: regexp.MustCompile(`Android ([\d.]+)`)},
	{contains: "iPhone", orContains: "iPad", name: "iOS", versionRe: regexp.MustCompile(`OS ([\d_]+)`), underscored: true},
}

type browserRule struct {
	contains  string
	excludes  string
	name      string
	versionRe *regexp.Regexp
}

var browserRules = []browserRule{
	{contains: "Chrome", excludes: "Edg", name: "Chrome", versionRe: regexp.MustCompile(`Chrome/([\d.]+)`)},
	{contains: "Edg", name: "Edge", versionRe: regexp.MustCompile(`Edg/([\d.]+)`)},
	{contains: "Firefox", name: "Firefox", versionRe: regexp.MustCompile(`Firefox/([\d.]+)`)},
	// Safari reports its real version in the Version/ token, not the
	// WebKit one.
	{contains: "Safari", name: "Safari", versionRe: regexp.MustCompile(`Version/([\d.]+)`)},
}

// ParseUserAgent parses a User-Agent string for client application, OS
// and browser facts. Unmatched categories are left empty.
func ParseUserAgent(ua string) Fingerprint {
	var fp Fingerprint
	if ua == "" {
		return fp
	}

	for _, rule := range clientAppRules {
		m := rule.pattern.FindStringSubmatch(ua)
		if m == nil {
			continue
		}
		if rule.app == "" {
			fp.ClientApp = "Microsoft Office " + strings.TrimSpace(m[1])
		} else {
			fp.ClientApp = rule.app
			if m[1] != "" {
				fp.ClientBuild = m[1]
			}
		}
		break
	}

	for _, rule := range osRules {
		if !strings.Contains(ua, rule.contains) &&
			(rule.orContains == "" || !strings.Contains(ua, rule.orContains)) {
			continue
		}
		fp.OSName = rule.name
		fp.OSVersion = rule.version
		if rule.versionRe != nil {
			if m := rule.versionRe.FindStringSubmatch(ua); m != nil {
				fp.OSVersion = m[1]
				if rule.underscored {
					fp.OSVersion = strings.ReplaceAll(fp.OSVersion, "_", ".")
				}
			}
		}
		break
	}

	// Browser detection is only attempted when no client application
	// matched: the two categories are mutually exclusive.
	if fp.ClientApp == "" {
		for _, rule := range browserRules {
			if !strings.Contains(ua, rule.contains) {
				continue
			}
			if rule.excludes != "" && strings.Contains(ua, rule.excludes) {
				continue
			}
			fp.BrowserName = rule.name
			if m := rule.versionRe.FindStringSubmatch(ua); m != nil {
				fp.BrowserVersion = m[1]
			}
			break
		}
	}

	return fp
}
