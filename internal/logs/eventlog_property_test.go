package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/qrscan/internal/clock"
	"github.com/narvanalabs/qrscan/internal/models"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// For any sequence of N log calls the event log retains exactly min(N, 100)
// entries, most recent first.
func TestPropertyBoundedLogs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("event log retains min(N, capacity) newest-first", prop.ForAll(
		func(n int) bool {
			clk := clock.Fake(epoch)
			l := NewEventLog(DefaultCapacity, clk, quietLogger())
			for i := 0; i < n; i++ {
				l.Info(fmt.Sprintf("event-%d", i))
				clk.Advance(time.Millisecond)
			}

			entries := l.Entries()
			want := n
			if want > DefaultCapacity {
				want = DefaultCapacity
			}
			if len(entries) != want {
				return false
			}
			for i, e := range entries {
				if e.Message != fmt.Sprintf("event-%d", n-1-i) {
					return false
				}
				if i > 0 && e.Timestamp.After(entries[i-1].Timestamp) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 350),
	))

	properties.TestingRun(t)
}

func TestEventLogLevelsAndPayload(t *testing.T) {
	l := NewEventLog(10, clock.Fake(epoch), quietLogger())
	l.Debug("d")
	l.Info("i", map[string]string{"k": "v"})
	l.Warn("w", 1, 2)
	l.Error("e")

	entries := l.Entries()
	levels := []models.LogLevel{models.LogLevelError, models.LogLevelWarn, models.LogLevelInfo, models.LogLevelDebug}
	for i, lvl := range levels {
		if entries[i].Level != lvl {
			t.Fatalf("entries[%d].Level = %s, want %s", i, entries[i].Level, lvl)
		}
	}
	if entries[0].Data != nil {
		t.Errorf("expected nil payload, got %v", entries[0].Data)
	}
	if got, ok := entries[1].Data.([]any); !ok || len(got) != 2 {
		t.Errorf("multi-value payload = %#v", entries[1].Data)
	}
	if got, ok := entries[2].Data.(map[string]string); !ok || got["k"] != "v" {
		t.Errorf("single payload = %#v", entries[2].Data)
	}
	if entries[0].ID == "" || entries[0].ID == entries[1].ID {
		t.Errorf("entry ids not unique")
	}
}

func TestEventLogClear(t *testing.T) {
	l := NewEventLog(5, clock.Fake(epoch), quietLogger())
	sub := l.Subscribe()
	defer l.Unsubscribe(sub)

	l.Info("one")
	l.Clear()

	if l.Len() != 0 {
		t.Fatalf("Len() = %d after Clear", l.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	if err != nil || ev.Kind != EventAppended || ev.Entry.Message != "one" {
		t.Fatalf("first event = %+v, %v", ev, err)
	}
	ev, err = sub.Next(ctx)
	if err != nil || ev.Kind != EventCleared {
		t.Fatalf("second event = %+v, %v", ev, err)
	}
}

func TestEventLogDefaultsCapacity(t *testing.T) {
	l := NewEventLog(0, nil, nil)
	if l.Capacity() != DefaultCapacity {
		t.Fatalf("Capacity() = %d", l.Capacity())
	}
}

func TestSnapshotPartitionsConcurrentAppends(t *testing.T) {
	const total = 200
	l := NewEventLog(total, clock.Fake(epoch), quietLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			l.Info(fmt.Sprintf("entry %d", i))
		}
	}()

	entries, sub := l.Snapshot()
	defer l.Unsubscribe(sub)
	<-done

	seen := make(map[string]bool, total)
	for _, e := range entries {
		seen[e.ID] = true
	}
	ctx := context.Background()
	for sub.Pending() > 0 {
		ev, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if seen[ev.Entry.ID] {
			t.Fatalf("entry %q delivered by both snapshot and feed", ev.Entry.Message)
		}
		seen[ev.Entry.ID] = true
	}
	if len(seen) != total {
		t.Fatalf("snapshot and feed covered %d entries, want %d", len(seen), total)
	}
}
