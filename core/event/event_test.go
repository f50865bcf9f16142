package event

import (
	"testing"
	"time"
)

func TestPresaleOpen(t *testing.T) {
	now := time.Date(2026, time.July, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
		want  bool
	}{
		{"no window", nil, nil, true},
		{"open window", &before, &after, true},
		{"not started", &after, nil, false},
		{"already over", nil, &before, false},
		{"start only, past", &before, nil, true},
		{"end only, future", nil, &after, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{PresaleStart: tt.start, PresaleEnd: tt.end}
			if got := e.PresaleOpen(now); got != tt.want {
				t.Fatalf("PresaleOpen() = %v, want %v", got, tt.want)
			}
		})
	}
}
