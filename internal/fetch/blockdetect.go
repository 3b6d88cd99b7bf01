package fetch

import (
	"net/http"
	"strings"
)

// BlockType describes why a page returned a shell instead of the article.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockPaywall    BlockType = "paywall"
	BlockJSShell    BlockType = "js_shell"
)

// Body markers checked case-insensitively, in priority order. Captcha and
// challenge markers win over paywall markers because challenge pages often
// mention subscriptions in their footers.
var blockMarkers = []struct {
	kind    BlockType
	markers []string
}{
	{BlockCloudflare, []string{
		"checking your browser",
		"cf-browser-verification",
		"attention required! | cloudflare",
	}},
	{BlockCaptcha, []string{
		"recaptcha",
		"hcaptcha",
		"captcha",
	}},
	{BlockPaywall, []string{
		"subscribe to continue reading",
		"subscription required",
		"to continue reading, please subscribe",
		"register to continue",
	}},
}

// DetectBlock checks an HTTP response for signs that the server returned an
// anti-bot or paywall shell instead of the page. Callers report blocked
// pages as empty content: the request worked, the article did not arrive.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	// Cloudflare fronting is visible in headers before the body says anything.
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" ||
			resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	for _, set := range blockMarkers {
		for _, m := range set.markers {
			if strings.Contains(lower, m) {
				return true, set.kind
			}
		}
	}

	// A tiny body that immediately defers to JavaScript or a meta refresh
	// is a client-side shell with no server-rendered article.
	if len(body) < 2048 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
