package runtime_test

import (
	"testing"
	"time"

	"github.com/velocitylabs/vcollect/runtime"
)

func TestExpandFilename(t *testing.T) {
	at := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)

	cases := []struct {
		name    string
		pattern string
		want    string
	}{
		{"default style", "{device_name}_{timestamp}.txt", "sw-den-01_20260820-143005.txt"},
		{"device id", "{device_id}-{device_name}.cfg", "42-sw-den-01.cfg"},
		{"no variables", "capture.txt", "capture.txt"},
		{"unknown variable passes through", "{device_name}_{site}.txt", "sw-den-01_{site}.txt"},
		{"repeated variable", "{device_name}/{device_name}.txt", "sw-den-01/sw-den-01.txt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := runtime.ExpandFilename(tc.pattern, "sw-den-01", 42, at)
			if got != tc.want {
				t.Errorf("ExpandFilename(%q) = %q, want %q", tc.pattern, got, tc.want)
			}
		})
	}
}

func TestExpandFilename_TimestampIsUTC(t *testing.T) {
	denver := time.FixedZone("MDT", -6*3600)
	at := time.Date(2026, 8, 20, 18, 0, 0, 0, denver)

	got := runtime.ExpandFilename("{timestamp}", "sw", 1, at)
	if got != "20260821-000000" {
		t.Errorf("timestamp should be UTC, got %q", got)
	}
}

func TestExpandFilename_SanitizesDeviceName(t *testing.T) {
	got := runtime.ExpandFilename("{device_name}.txt", "core/1", 1, time.Now())
	if got != "core-1.txt" {
		t.Errorf("path separator survived: %q", got)
	}
}
