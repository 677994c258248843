package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		body    string
		blocked bool
		kind    BlockKind
	}{
		{
			name:    "normal page",
			status:  200,
			body:    "<html><body>Gym results</body></html>",
			blocked: false,
			kind:    BlockNone,
		},
		{
			name:    "plain 403",
			status:  403,
			blocked: true,
			kind:    BlockHTTPStatus,
		},
		{
			name:    "429 behind cloudflare",
			status:  429,
			headers: map[string]string{"cf-ray": "8abc123"},
			blocked: true,
			kind:    BlockCloudflare,
		},
		{
			name:    "cloudflare challenge with 200",
			status:  200,
			body:    "<html>Checking your browser before accessing</html>",
			blocked: true,
			kind:    BlockCloudflare,
		},
		{
			name:    "captcha interstitial",
			status:  200,
			body:    "<html>Our systems have detected unusual traffic</html>",
			blocked: true,
			kind:    BlockCaptcha,
		},
		{
			name:    "js shell",
			status:  200,
			body:    "<html><noscript>Please enable JavaScript</noscript></html>",
			blocked: true,
			kind:    BlockJSShell,
		},
		{
			name:    "large page with noscript is not a shell",
			status:  200,
			body:    "<html><noscript>enable javascript</noscript>" + string(make([]byte, 3000)) + "</html>",
			blocked: false,
			kind:    BlockNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, kind := DetectBlock(tt.status, tt.headers, []byte(tt.body))
			assert.Equal(t, tt.blocked, blocked)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
