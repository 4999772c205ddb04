package metadata

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	t.Run("prefers first X-Forwarded-For entry", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		assert.Equal(t, "203.0.113.7", ClientIPFromRequest(req))
	})

	t.Run("falls back to X-Real-IP", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Real-IP", " 198.51.100.4 ")
		assert.Equal(t, "198.51.100.4", ClientIPFromRequest(req))
	})

	t.Run("strips port from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.0.2.9:51234"
		assert.Equal(t, "192.0.2.9", ClientIPFromRequest(req))
	})
}

func TestSummarizeUserAgent(t *testing.T) {
	t.Run("empty stays empty", func(t *testing.T) {
		assert.Equal(t, "", SummarizeUserAgent(""))
	})

	t.Run("browser agent is summarized", func(t *testing.T) {
		raw := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		got := SummarizeUserAgent(raw)
		assert.Contains(t, got, "Chrome")
		assert.Contains(t, got, "Windows")
	})

	t.Run("unparseable agent is truncated, not dropped", func(t *testing.T) {
		long := make([]byte, 200)
		for i := range long {
			long[i] = 'x'
		}
		got := SummarizeUserAgent(string(long))
		assert.NotEmpty(t, got)
		assert.LessOrEqual(t, len(got), 120)
	})
}
