package util

import (
	"testing"
	"time"
)

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TA_INT_OK", " 12 ")
	t.Setenv("TA_INT_BAD", "twelve")

	if got := GetEnvInt("TA_INT_OK", 3); got != 12 {
		t.Fatalf("got %d, want 12", got)
	}
	if got := GetEnvInt("TA_INT_BAD", 3); got != 3 {
		t.Fatalf("got %d, want default 3", got)
	}
	if got := GetEnvInt("TA_INT_MISSING", 7); got != 7 {
		t.Fatalf("got %d, want default 7", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"false", true, false},
		{"0", true, false},
		{"maybe", true, true},
	}
	for _, tc := range tests {
		t.Setenv("TA_BOOL", tc.value)
		if got := GetEnvBool("TA_BOOL", tc.def); got != tc.want {
			t.Fatalf("GetEnvBool(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
		}
	}
}

func TestGetEnvStringAndDuration(t *testing.T) {
	t.Setenv("TA_EMPTY", "  ")
	t.Setenv("TA_MS", "250")

	if got := GetEnvString("TA_EMPTY", "fallback"); got != "fallback" {
		t.Fatalf("got %q, want fallback", got)
	}
	if got := GetEnvDuration("TA_MS", 0, time.Millisecond); got != 250*time.Millisecond {
		t.Fatalf("got %v", got)
	}
	if got := GetEnvFloat("TA_MISSING_FLOAT", 0.7); got != 0.7 {
		t.Fatalf("got %v", got)
	}
}
