package cmd

import (
	"testing"
	"time"
)

func TestFormatRelativeTime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"seconds ago", now.Add(-10 * time.Second), "just now"},
		{"minutes ago", now.Add(-5*time.Minute - time.Second), "5m ago"},
		{"hours ago", now.Add(-3*time.Hour - time.Second), "3h ago"},
		{"days ago", now.Add(-49 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatRelativeTime(tt.at); got != tt.want {
				t.Errorf("formatRelativeTime = %q, want %q", got, tt.want)
			}
		})
	}

	old := now.Add(-30 * 24 * time.Hour)
	if got, want := formatRelativeTime(old), old.Local().Format("2006-01-02"); got != want {
		t.Errorf("old timestamp = %q, want date %q", got, want)
	}
}
