package fingerprint

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserAgent_EmptyInput(t *testing.T) {
	fp := ParseUserAgent("")
	assert.Equal(t, Fingerprint{}, fp)
}

func TestParseUserAgent_NoKnownMarkers(t *testing.T) {
	// A UA with no Office/browser/OS markers leaves every field empty.
	fp := ParseUserAgent("SomeBot/1.0 (+https://example.com/bot)")
	assert.Empty(t, fp.OSName)
	assert.Empty(t, fp.OSVersion)
	assert.Empty(t, fp.BrowserName)
	assert.Empty(t, fp.BrowserVersion)
	assert.Empty(t, fp.ClientApp)
	assert.Empty(t, fp.ClientBuild)
}

func TestParseUserAgent_EdgeWinsOverChrome(t *testing.T) {
	// Edge advertises a Chrome token; the Chrome rule must not fire.
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	fp := ParseUserAgent(ua)

	assert.Equal(t, "Edge", fp.BrowserName)
	assert.Equal(t, "120.0.2210.91", fp.BrowserVersion)
	assert.Equal(t, "Windows", fp.OSName)
	assert.Equal(t, "10/11", fp.OSVersion)
}

func TestParseUserAgent_WordExcludesBrowser(t *testing.T) {
	// A client application match keeps the browser fields empty even
	// when the UA carries browser tokens.
	ua := "Mozilla/4.0 (compatible; MSIE 7.0; Windows NT 10.0; Word/16.0; ms-office)"
	fp := ParseUserAgent(ua)

	assert.Equal(t, "Microsoft Word", fp.ClientApp)
	assert.Equal(t, "16.0", fp.ClientBuild)
	assert.Empty(t, fp.BrowserName)
	assert.Empty(t, fp.BrowserVersion)
}

func TestParseUserAgent_Table(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Fingerprint
	}{
		{
			name: "chrome on windows 10",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: Fingerprint{OSName: "Windows", OSVersion: "10/11", BrowserName: "Chrome", BrowserVersion: "120.0.0.0"},
		},
		{
			name: "firefox on windows 7",
			ua:   "Mozilla/5.0 (Windows NT 6.1; rv:115.0) Gecko/20100101 Firefox/115.0",
			want: Fingerprint{OSName: "Windows", OSVersion: "7", BrowserName: "Firefox", BrowserVersion: "115.0"},
		},
		{
			name: "windows 8.1",
			ua:   "Mozilla/5.0 (Windows NT 6.3; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			want: Fingerprint{OSName: "Windows", OSVersion: "8.1", BrowserName: "Chrome", BrowserVersion: "119.0.0.0"},
		},
		{
			name: "safari version token on macOS",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			want: Fingerprint{OSName: "macOS", OSVersion: "10.15.7", BrowserName: "Safari", BrowserVersion: "17.2"},
		},
		{
			name: "chrome on android",
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.43 Mobile Safari/537.36",
			// Linux precedes Android in the rule table.
			want: Fingerprint{OSName: "Linux", BrowserName: "Chrome", BrowserVersion: "120.0.6099.43"},
		},
		{
			name: "ipad without mac token",
			ua:   "Mozilla/5.0 (iPad; CPU OS 16_6) AppleWebKit/605.1.15 Version/16.6 Safari/604.1",
			want: Fingerprint{OSName: "iOS", OSVersion: "16.6", BrowserName: "Safari", BrowserVersion: "16.6"},
		},
		{
			name: "office suite name captured",
			ua:   "Microsoft Office PowerPoint 2013 (15.0.4420) Windows NT 6.1",
			want: Fingerprint{OSName: "Windows", OSVersion: "7", ClientApp: "Microsoft Office PowerPoint 2013"},
		},
		{
			name: "excel with build",
			ua:   "Mozilla/4.0 (compatible; MSIE 7.0; Windows NT 10.0; Excel/16.0.17029)",
			want: Fingerprint{OSName: "Windows", OSVersion: "10/11", ClientApp: "Microsoft Excel", ClientBuild: "16.0.17029"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseUserAgent(tt.ua))
		})
	}
}

func TestClientIP(t *testing.T) {
	newRequest := func(remoteAddr string, headers map[string]string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/health/ping", nil)
		r.RemoteAddr = remoteAddr
		for k, v := range headers {
			r.Header.Set(k, v)
		}
		return r
	}

	t.Run("first forwarded entry wins", func(t *testing.T) {
		r := newRequest("10.0.0.1:4321", map[string]string{
			"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
			"X-Real-IP":       "198.51.100.2",
		})
		assert.Equal(t, "203.0.113.7", ClientIP(r))
	})

	t.Run("real ip fallback", func(t *testing.T) {
		r := newRequest("10.0.0.1:4321", map[string]string{"X-Real-IP": "198.51.100.2"})
		assert.Equal(t, "198.51.100.2", ClientIP(r))
	})

	t.Run("remote addr without port", func(t *testing.T) {
		r := newRequest("192.0.2.9:52113", nil)
		assert.Equal(t, "192.0.2.9", ClientIP(r))
	})
}

func TestExtract(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/assets/media/logo.png?cid=abc", nil)
	r.RemoteAddr = "192.0.2.9:52113"
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	r.Header.Set("Accept", "image/png,*/*")
	r.Header.Set("Accept-Language", "en-US,en;q=0.9")

	fp := Extract(r)
	require.Equal(t, "192.0.2.9", fp.IPAddress)
	assert.Equal(t, "Chrome", fp.BrowserName)
	assert.Equal(t, "image/png,*/*", fp.AcceptHeaders)
	assert.Equal(t, "en-US,en;q=0.9", fp.AcceptLanguage)
}

func TestExtract_NilRequest(t *testing.T) {
	assert.Equal(t, Fingerprint{}, Extract(nil))
}
