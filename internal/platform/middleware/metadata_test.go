package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"verity/pkg/requestcontext"
)

func captureIP(m *Metadata, remoteAddr string, headers map[string]string) string {
	var got string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.ClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestMetadataUsesRemoteAddr(t *testing.T) {
	m := NewMetadata(nil)
	assert.Equal(t, "203.0.113.9", captureIP(m, "203.0.113.9:51234", nil))
}

func TestMetadataIgnoresXFFFromUntrustedPeer(t *testing.T) {
	m := NewMetadata(nil)
	got := captureIP(m, "203.0.113.9:51234", map[string]string{
		"X-Forwarded-For": "198.51.100.7",
	})
	assert.Equal(t, "203.0.113.9", got)
}

func TestMetadataTrustsXFFFromProxy(t *testing.T) {
	m := NewMetadata(&MetadataConfig{
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})
	got := captureIP(m, "10.1.2.3:443", map[string]string{
		"X-Forwarded-For": "198.51.100.7, 10.1.2.3",
	})
	assert.Equal(t, "198.51.100.7", got)
}

func TestMetadataRejectsOversizedXFF(t *testing.T) {
	m := NewMetadata(&MetadataConfig{
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})
	got := captureIP(m, "10.1.2.3:443", map[string]string{
		"X-Forwarded-For": strings.Repeat("1", MaxForwardedHeaderLength+1),
	})
	assert.Equal(t, "10.1.2.3", got)
}

func TestMetadataRejectsMalformedXFF(t *testing.T) {
	m := NewMetadata(&MetadataConfig{
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})
	got := captureIP(m, "10.1.2.3:443", map[string]string{
		"X-Forwarded-For": "not-an-ip",
	})
	assert.Equal(t, "10.1.2.3", got)
}

func TestMetadataIPv6RemoteAddr(t *testing.T) {
	m := NewMetadata(nil)
	assert.Equal(t, "::1", captureIP(m, "[::1]:51234", nil))
}

func TestMetadataCapturesUserAgent(t *testing.T) {
	m := NewMetadata(nil)
	var got string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "test-agent/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "test-agent/1.0", got)
}
