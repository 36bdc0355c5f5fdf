package notify

import (
	"testing"
	"time"
)

func TestErrorPrefixesTitle(t *testing.T) {
	center := NewCenter()
	center.Error("delete task: connection reset")

	active := center.Active()
	if len(active) != 1 {
		t.Fatalf("Active() = %d toasts, want 1", len(active))
	}
	if active[0].Title != "Error: delete task: connection reset" {
		t.Fatalf("title = %q", active[0].Title)
	}
	if active[0].Level != LevelError {
		t.Fatalf("level = %q, want error", active[0].Level)
	}
}

func TestExpiredToastsPrunedOnRead(t *testing.T) {
	clock := time.Unix(1000, 0)
	center := NewCenter(WithTTL(3 * time.Second))
	center.now = func() time.Time { return clock }

	center.Success("task created")
	clock = clock.Add(2 * time.Second)
	center.Warn("bridge reconnecting")
	clock = clock.Add(2 * time.Second)

	active := center.Active()
	if len(active) != 1 {
		t.Fatalf("Active() = %d toasts, want only the unexpired one", len(active))
	}
	if active[0].Level != LevelWarning {
		t.Fatalf("surviving toast = %+v, want the warning", active[0])
	}
}

func TestListStaysBounded(t *testing.T) {
	center := NewCenter(WithMax(3), WithTTL(time.Hour))
	for i := 0; i < 10; i++ {
		center.Success("done")
	}
	if got := len(center.Active()); got != 3 {
		t.Fatalf("Active() = %d toasts, want capped at 3", got)
	}
}

type countingMetrics struct {
	levels []string
}

func (m *countingMetrics) Notification(level string) {
	m.levels = append(m.levels, level)
}

func TestMetricsCountedByLevel(t *testing.T) {
	m := &countingMetrics{}
	center := NewCenter(WithMetrics(m))
	center.Error("boom")
	center.Success("ok")

	if len(m.levels) != 2 || m.levels[0] != "error" || m.levels[1] != "success" {
		t.Fatalf("recorded levels = %v", m.levels)
	}
}
