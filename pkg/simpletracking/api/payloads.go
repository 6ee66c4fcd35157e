package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// Canned bytes served by the camouflage surface. Every payload is a
// real, minimal instance of its advertised content type so responses
// survive proxy inspection.

// transparentPNGBase64 is a 1x1 transparent PNG, the smallest valid PNG.
const transparentPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

var transparentPNG = mustDecodeBase64(transparentPNGBase64)

// minimalWOFF2 is a valid WOFF2 header describing an empty font.
var minimalWOFF2 = []byte{
	0x77, 0x4F, 0x46, 0x32, 0x00, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x1C, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// Static config bodies. Values never change; the request is the signal.
var (
	configRuntime = map[string]interface{}{
		"theme":   "light",
		"density": "comfortable",
		"version": "2.4.1",
	}

	configUIFlags = map[string]interface{}{
		"features": map[string]bool{
			"tables":        true,
			"charts":        false,
			"comments":      true,
			"track_changes": false,
		},
		"experimental": map[string]interface{}{},
	}

	configDocSettings = map[string]interface{}{
		"page_size":   "A4",
		"margins":     "normal",
		"orientation": "portrait",
		"render_mode": "standard",
	}
)

const (
	cacheImmutable = 31536000 // one year, for assets and fonts
	cacheTheme     = 86400
	cacheConfig    = 300
)

func themeCSS(name string) string {
	return fmt.Sprintf("/* %s theme */\n:root { --theme: %s; }\n", name, name)
}

func setCacheControl(w http.ResponseWriter, seconds int) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", seconds))
}

func mustDecodeBase64(s string) []byte {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return data
}
