/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package identity derives stable player keys for MSX clients.
//
// Smart TVs sit behind NAT and the MSX app may or may not expose a stable
// device identifier, so the resolver always produces some key: an explicit
// device_id parameter wins, the source IP is the fallback.
package identity

import (
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// KeyPrefix namespaces all bridge player keys in the host system.
const KeyPrefix = "msx_"

// Key addresses one remote playback target.
type Key string

func (k Key) String() string { return string(k) }

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Resolve derives the player key for a request. It never fails.
func Resolve(r *http.Request) Key {
	key, _ := ResolveWithParam(r)
	return key
}

// ResolveWithParam derives the player key and the device query parameter
// ("device_id=xxx", URL-encoded) to propagate into generated URLs, or ""
// when the IP fallback was used.
func ResolveWithParam(r *http.Request) (Key, string) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID != "" {
		sanitized := sanitize(deviceID, "device")
		return Key(KeyPrefix + sanitized), "device_id=" + url.QueryEscape(deviceID)
	}

	ip := remoteIP(r)
	sanitized := sanitize(strings.ReplaceAll(ip, ".", "_"), "ip")
	return Key(KeyPrefix + sanitized), ""
}

// StripExtension removes a trailing extension MSX may append to keys in
// URLs (.mp3, .json, ...).
func StripExtension(raw string) string {
	if idx := strings.LastIndex(raw, "."); idx > 0 {
		return raw[:idx]
	}
	return raw
}

// AppendDeviceParam appends the device parameter to a URL if present.
func AppendDeviceParam(u, deviceParam string) string {
	if deviceParam == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + deviceParam
}

func sanitize(raw, fallback string) string {
	s := sanitizeRe.ReplaceAllString(raw, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return fallback
	}
	return s
}

func remoteIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from X-Forwarded-For.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "0_0_0_0"
	}
	// IPv6 addresses carry colons the sanitizer collapses.
	return host
}
