package util

import (
	"fmt"
	"time"
)

// EstimateRemaining projects the time left for a run of total units after done
// of them took elapsed, assuming the average rate so far holds.
// It returns false while no unit has completed yet.
func EstimateRemaining(elapsed time.Duration, done, total int) (time.Duration, bool) {
	if done <= 0 || total <= 0 {
		return 0, false
	}
	remaining := total - done
	if remaining <= 0 {
		return 0, true
	}
	perUnit := elapsed / time.Duration(done)
	return perUnit * time.Duration(remaining), true
}

// ETASeconds is EstimateRemaining truncated to whole seconds.
func ETASeconds(elapsed time.Duration, done, total int) (int, bool) {
	d, ok := EstimateRemaining(elapsed, done, total)
	if !ok {
		return 0, false
	}
	return int(d / time.Second), true
}

// Percentage returns done/total in whole percent, clamped to [0,100].
func Percentage(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return done * 100 / total
}

// FormatDuration renders d as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
