package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"vetting/pkg/requestcontext"
)

func TestParseUserAgent(t *testing.T) {
	t.Run("empty user agent returns unknown device", func(t *testing.T) {
		assert.Equal(t, "Unknown Device", ParseUserAgent(""))
	})

	t.Run("firefox on linux includes browser and OS", func(t *testing.T) {
		got := ParseUserAgent("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
		assert.Contains(t, got, "Firefox")
		assert.Contains(t, got, " on ")
	})
}

func TestClientMetadata(t *testing.T) {
	var ip, device string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		device = requestcontext.ClientDevice(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.7", ip)
	assert.Equal(t, "Unknown Device", device)
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		realIP string
		remote string
		want   string
	}{
		{name: "first forwarded hop", xff: "203.0.113.7, 10.0.0.1", remote: "10.0.0.2:5000", want: "203.0.113.7"},
		{name: "garbage forwarded header", xff: "not-an-ip", realIP: "198.51.100.4", remote: "10.0.0.2:5000", want: "198.51.100.4"},
		{name: "real ip header", realIP: " 198.51.100.4 ", remote: "10.0.0.2:5000", want: "198.51.100.4"},
		{name: "ipv6 peer", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "peer without port", remote: "192.0.2.9", want: "192.0.2.9"},
		{name: "nothing known", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}
