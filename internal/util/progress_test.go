package util

import (
	"testing"
	"time"
)

func TestETASeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed time.Duration
		done    int
		total   int
		want    int
		ok      bool
	}{
		{name: "nothing_done", elapsed: 5 * time.Second, done: 0, total: 4, ok: false},
		{name: "one_of_four", elapsed: 10 * time.Second, done: 1, total: 4, want: 30, ok: true},
		{name: "half", elapsed: 30 * time.Second, done: 3, total: 6, want: 30, ok: true},
		{name: "fraction_truncated", elapsed: 7 * time.Second, done: 2, total: 3, want: 3, ok: true},
		{name: "finished", elapsed: 40 * time.Second, done: 4, total: 4, want: 0, ok: true},
		{name: "zero_total", elapsed: time.Second, done: 1, total: 0, ok: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ETASeconds(tc.elapsed, tc.done, tc.total)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("got (%d, %v), want (%d, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		done, total, want int
	}{
		{0, 10, 0},
		{3, 10, 30},
		{10, 10, 100},
		{12, 10, 100},
		{1, 0, 0},
	}
	for _, tc := range tests {
		if got := Percentage(tc.done, tc.total); got != tc.want {
			t.Fatalf("Percentage(%d, %d) = %d, want %d", tc.done, tc.total, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	if got := FormatDuration(3*time.Hour + 4*time.Minute + 5*time.Second); got != "03:04:05" {
		t.Fatalf("got %q", got)
	}
	if got := FormatDuration(-time.Second); got != "00:00:00" {
		t.Fatalf("got %q", got)
	}
}
