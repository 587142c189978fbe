package scrape

import (
	"net/http"
	"strings"
)

// BlockType names the anti-bot measure that stopped a fetch.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockDenied     BlockType = "denied"
)

// bodyMarkers are checked in order against a lowercased body; the first
// group with any match wins.
var bodyMarkers = []struct {
	kind    BlockType
	needles []string
}{
	{BlockCloudflare, []string{"checking your browser", "cf-browser-verification", "just a moment...", "attention required! | cloudflare"}},
	{BlockCaptcha, []string{"captcha"}},
	{BlockJSShell, []string{"enable javascript", "please enable cookies"}},
	{BlockDenied, []string{"access denied", "403 forbidden"}},
}

// classifyBody looks for interstitial markers in already-lowercased text.
func classifyBody(lower string) BlockType {
	for _, m := range bodyMarkers {
		for _, n := range m.needles {
			if strings.Contains(lower, n) {
				return m.kind
			}
		}
	}
	if strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return BlockCloudflare
	}
	return BlockNone
}

// DetectBlock inspects a direct HTML fetch for anti-bot responses.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		h := resp.Header
		if h.Get("cf-ray") != "" || h.Get("cf-cache-status") != "" || strings.EqualFold(h.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	if kind := classifyBody(lower); kind == BlockCloudflare || kind == BlockCaptcha {
		return true, kind
	}

	// A tiny document that only asks for JavaScript or redirects is a shell.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}
	return false, BlockNone
}

var loginWallIndicators = []string{
	"authwall",
	"login_required",
	"please log in",
	"sign up to view",
	"join now to see",
	"sign in to view",
}

// IsLoginWall reports whether content is a sign-in interstitial instead of
// the profile. Anything shorter than a usable page counts as a wall.
func IsLoginWall(content string) bool {
	content = strings.TrimSpace(content)
	if len(content) < minContent {
		return true
	}
	lower := strings.ToLower(content)
	for _, indicator := range loginWallIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return len(content) < 1500 && strings.Contains(lower, "sign in") && strings.Contains(lower, "join now")
}
