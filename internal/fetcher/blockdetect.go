package fetcher

import "strings"

// BlockKind describes the kind of anti-bot block detected on a page.
type BlockKind string

const (
	BlockNone       BlockKind = ""
	BlockHTTPStatus BlockKind = "http_status"
	BlockCloudflare BlockKind = "cloudflare"
	BlockCaptcha    BlockKind = "captcha"
	BlockJSShell    BlockKind = "js_shell"
)

// DetectBlock checks a fetched results page for signs of anti-bot protection.
// A 403/429 status is a block on its own; challenge and captcha markers catch
// soft blocks served with a 200.
func DetectBlock(statusCode int, headers map[string]string, body []byte) (bool, BlockKind) {
	if statusCode == 403 || statusCode == 429 {
		if headers["cf-ray"] != "" || headers["server"] == "cloudflare" {
			return true, BlockCloudflare
		}
		return true, BlockHTTPStatus
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") ||
		strings.Contains(lower, "unusual traffic") ||
		strings.Contains(lower, "automated queries") {
		return true, BlockCaptcha
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "meta http-equiv=\"refresh\"") {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
