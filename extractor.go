package warden

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"
)

// forwardingHeaders are consulted in order for the client address.
// X-Forwarded-For may hold a list; the first entry is the client.
var forwardingHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
}

var tabletKeywords = []string{"ipad", "tablet", "playbook", "silk"}

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
}

// ExtractDeviceInfo describes the client of an HTTP request from its
// address and User-Agent. City and Country are left empty.
func ExtractDeviceInfo(r *http.Request) ClientInfo {
	ua := r.UserAgent()
	client := ClientInfo{
		IP:        clientIP(r),
		UserAgent: ua,
	}
	if ua == "" {
		return client
	}

	parsed := useragent.New(ua)

	browser, version := parsed.Browser()
	client.Browser = joinVersion(browser, version)

	osInfo := parsed.OSInfo()
	client.OS = joinVersion(osInfo.Name, osInfo.Version)

	switch {
	case parsed.Bot():
		client.DeviceType = "bot"
	case isTablet(ua):
		client.DeviceType = "tablet"
	case parsed.Mobile():
		client.DeviceType = "mobile"
	default:
		client.DeviceType = "desktop"
	}

	return client
}

func joinVersion(name, version string) string {
	if version == "" {
		return name
	}
	return name + " " + version
}

// clientIP returns the first valid address among the forwarding headers,
// then RemoteAddr.
func clientIP(r *http.Request) string {
	for _, header := range forwardingHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		first, _, _ := strings.Cut(value, ",")
		first = strings.TrimSpace(first)
		if _, err := netip.ParseAddr(first); err == nil {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port
		return r.RemoteAddr
	}
	return host
}

func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	for _, keyword := range tabletKeywords {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports whether ip is a loopback or private-range address.
// Such addresses have no geolocation.
func IsPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return true
	}
	for _, prefix := range privatePrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
