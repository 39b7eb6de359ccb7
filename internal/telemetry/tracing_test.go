/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSpanAttributesConvertsSupportedTypes(t *testing.T) {
	attrs := SpanAttributes(map[string]any{
		"player_key": "msx_tv1",
		"codec":      "mp3",
		"bitrate":    320,
		"offset":     int64(42),
		"ratio":      0.5,
		"shared":     true,
		"skipped":    []string{"not", "representable"},
	})

	byKey := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, a := range attrs {
		byKey[a.Key] = a.Value
	}
	if len(byKey) != 6 {
		t.Fatalf("attrs = %v, want 6 entries", attrs)
	}
	if v := byKey["player_key"]; v.AsString() != "msx_tv1" {
		t.Fatalf("player_key = %v", v)
	}
	if v := byKey["bitrate"]; v.AsInt64() != 320 {
		t.Fatalf("bitrate = %v", v)
	}
	if v := byKey["offset"]; v.AsInt64() != 42 {
		t.Fatalf("offset = %v", v)
	}
	if v := byKey["ratio"]; v.AsFloat64() != 0.5 {
		t.Fatalf("ratio = %v", v)
	}
	if v := byKey["shared"]; !v.AsBool() {
		t.Fatalf("shared = %v", v)
	}
	if _, ok := byKey["skipped"]; ok {
		t.Fatal("unrepresentable value was not dropped")
	}
}
