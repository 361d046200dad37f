package useragent

import (
	"net/http"
	"strings"
)

// ExtractDeviceInfo parses the User-Agent header into a short description
// for session records. Panel clients are mostly media players and set-top
// boxes, so those are matched before browsers.
func ExtractDeviceInfo(r *http.Request) string {
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		return "Unknown Device"
	}

	// Media players and boxes first
	switch {
	case strings.Contains(ua, "VLC"):
		return "VLC Player"
	case strings.Contains(ua, "Kodi"):
		return "Kodi"
	case strings.Contains(ua, "Lavf") || strings.Contains(ua, "FFmpeg"):
		return "FFmpeg-based Player"
	case strings.Contains(ua, "okhttp"):
		return "Android Player"
	case strings.Contains(ua, "MAG") && strings.Contains(ua, "stbapp"):
		return "MAG Set-Top Box"
	case strings.Contains(ua, "SmartTV") || strings.Contains(ua, "Tizen") || strings.Contains(ua, "WebOS"):
		return "Smart TV"
	}

	// Browsers
	browser := "Unknown Browser"
	if strings.Contains(ua, "Chrome/") && !strings.Contains(ua, "Edg") {
		browser = "Chrome"
	} else if strings.Contains(ua, "Safari/") && !strings.Contains(ua, "Chrome") {
		browser = "Safari"
	} else if strings.Contains(ua, "Firefox/") {
		browser = "Firefox"
	} else if strings.Contains(ua, "Edg/") {
		browser = "Edge"
	}

	// Parse OS
	os := "Unknown OS"
	if strings.Contains(ua, "Windows") {
		os = "Windows"
	} else if strings.Contains(ua, "Mac OS X") {
		os = "macOS"
	} else if strings.Contains(ua, "Android") {
		os = "Android"
	} else if strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad") {
		os = "iOS"
	} else if strings.Contains(ua, "Linux") {
		os = "Linux"
	}

	return browser + " on " + os
}

// ExtractIPAddress gets the real IP address from the request
// Handles proxies and load balancers by checking X-Forwarded-For and X-Real-IP headers
func ExtractIPAddress(r *http.Request) string {
	// Try X-Forwarded-For header first (used by most proxies)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Try X-Real-IP header (used by nginx)
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	ip := r.RemoteAddr
	// Remove port if present
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	return ip
}
