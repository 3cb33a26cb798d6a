// Package metadata captures who is calling from where, for audit entries.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	vstrings "vetting/pkg/platform/strings"
	"vetting/pkg/requestcontext"
)

const unknownDevice = "Unknown Device"

// ClientMetadata stores the caller's IP, raw user agent and a short device
// label on the request context. Mount it before anything that audits.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, ParseUserAgent(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseUserAgent renders a "Browser on OS" label, falling back per part.
func ParseUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return unknownDevice
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	if ua.Bot() {
		return "Bot " + browser
	}
	return orUnknown(browser, "Browser") + " on " + orUnknown(ua.OS(), "OS")
}

func orUnknown(v, what string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "Unknown " + what
	}
	return v
}

// ClientIPFromRequest prefers the first hop of X-Forwarded-For, then
// X-Real-IP, then the socket peer. Header values that are not IPs are
// ignored.
func ClientIPFromRequest(r *http.Request) string {
	if hops := vstrings.SplitList(r.Header.Get("X-Forwarded-For"), ","); len(hops) > 0 && net.ParseIP(hops[0]) != nil {
		return hops[0]
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
