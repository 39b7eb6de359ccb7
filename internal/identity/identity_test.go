/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package identity

import (
	"net/http/httptest"
	"testing"
)

func TestResolveDeviceID(t *testing.T) {
	r := httptest.NewRequest("GET", "/msx/menu.json?device_id=tv1", nil)
	r.RemoteAddr = "192.168.1.50:43210"

	key, param := ResolveWithParam(r)
	if key != "msx_tv1" {
		t.Errorf("key = %q, want msx_tv1", key)
	}
	if param != "device_id=tv1" {
		t.Errorf("param = %q, want device_id=tv1", param)
	}
}

func TestResolveDeviceIDIndependentOfIP(t *testing.T) {
	a := httptest.NewRequest("GET", "/?device_id=tv1", nil)
	a.RemoteAddr = "10.0.0.1:1000"
	b := httptest.NewRequest("GET", "/?device_id=tv1", nil)
	b.RemoteAddr = "10.0.0.2:2000"

	if Resolve(a) != Resolve(b) {
		t.Error("same device_id should resolve to the same key regardless of source address")
	}
}

func TestResolveIPFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/msx/menu.json", nil)
	r.RemoteAddr = "192.168.1.50:43210"

	key, param := ResolveWithParam(r)
	if key != "msx_192_168_1_50" {
		t.Errorf("key = %q, want msx_192_168_1_50", key)
	}
	if param != "" {
		t.Errorf("param = %q, want empty for IP fallback", param)
	}
}

func TestResolveSanitizesDeviceID(t *testing.T) {
	tests := []struct {
		deviceID string
		want     Key
	}{
		{"tv one!", "msx_tv_one"},
		{"...", "msx_device"},
		{"a/b\\c", "msx_a_b_c"},
		{"ok-id_9", "msx_ok-id_9"},
	}
	for _, tc := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		q := r.URL.Query()
		q.Set("device_id", tc.deviceID)
		r.URL.RawQuery = q.Encode()
		if got := Resolve(r); got != tc.want {
			t.Errorf("Resolve(device_id=%q) = %q, want %q", tc.deviceID, got, tc.want)
		}
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ""
	if key := Resolve(r); key == "" || key == KeyPrefix {
		t.Errorf("key = %q, must always carry an identifier", key)
	}
}

func TestStripExtension(t *testing.T) {
	if got := StripExtension("msx_tv1.mp3"); got != "msx_tv1" {
		t.Errorf("StripExtension = %q", got)
	}
	if got := StripExtension("msx_tv1"); got != "msx_tv1" {
		t.Errorf("StripExtension = %q", got)
	}
}

func TestAppendDeviceParam(t *testing.T) {
	if got := AppendDeviceParam("http://x/menu.json", "device_id=tv1"); got != "http://x/menu.json?device_id=tv1" {
		t.Errorf("got %q", got)
	}
	if got := AppendDeviceParam("http://x/menu.json?a=1", "device_id=tv1"); got != "http://x/menu.json?a=1&device_id=tv1" {
		t.Errorf("got %q", got)
	}
	if got := AppendDeviceParam("http://x/menu.json", ""); got != "http://x/menu.json" {
		t.Errorf("got %q", got)
	}
}
