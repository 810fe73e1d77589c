package audit

import (
	"context"
	"path/filepath"
	"testing"

	"codegarden/internal/pattern"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "captures.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func capturedFixture(name string) *pattern.CapturedFailure {
	return pattern.NewCapturedFailure(pattern.Draft{
		Name:     name,
		Language: "python",
		Code:     "def f():\n    pass\n",
	}, "low-coherence", "composite 0.42 below threshold 0.70")
}

func TestAppendAndReplayOldestFirst(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	cf := capturedFixture("replayed")
	for _, event := range []string{EventCaptured, EventHealing, EventAttempt} {
		if err := l.Append(ctx, event, cf); err != nil {
			t.Fatalf("Append(%s) error: %v", event, err)
		}
	}

	entries, err := l.Replay(ctx, 10)
	if err != nil {
		t.Fatalf("Replay() error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("replayed %d entries, want 3", len(entries))
	}
	want := []string{EventCaptured, EventHealing, EventAttempt}
	for i, e := range entries {
		if e.Event != want[i] {
			t.Errorf("entry %d event = %s, want %s", i, e.Event, want[i])
		}
		if e.Failure == nil || e.Failure.ID != cf.ID {
			t.Errorf("entry %d lost its snapshot", i)
		}
	}
}

func TestReplayHonorsWindowLimit(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	var last *pattern.CapturedFailure
	for i := 0; i < 5; i++ {
		last = capturedFixture("windowed")
		if err := l.Append(ctx, EventCaptured, last); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	entries, err := l.Replay(ctx, 2)
	if err != nil {
		t.Fatalf("Replay() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("replayed %d entries, want 2", len(entries))
	}
	if entries[0].ID >= entries[1].ID {
		t.Error("window tail not ordered oldest first")
	}
	if entries[1].Failure.ID != last.ID {
		t.Error("window did not keep the newest entries")
	}
}

func TestRestoreRebuildsPendingBacklog(t *testing.T) {
	ctx := context.Background()
	l := openTestLog(t)

	// Still pending: only ever captured.
	pendingCF := capturedFixture("still-pending")
	if err := l.Append(ctx, EventCaptured, pendingCF); err != nil {
		t.Fatal(err)
	}

	// Fully healed: terminal, must not come back.
	healed := capturedFixture("was-healed")
	if err := l.Append(ctx, EventCaptured, healed); err != nil {
		t.Fatal(err)
	}
	if err := healed.Transition(pattern.StatusHealing); err != nil {
		t.Fatal(err)
	}
	if err := healed.Transition(pattern.StatusRecycled); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(ctx, EventRecycled, healed); err != nil {
		t.Fatal(err)
	}

	// Caught mid-heal: comes back pending with attempts preserved.
	interrupted := capturedFixture("mid-heal")
	if err := l.Append(ctx, EventCaptured, interrupted); err != nil {
		t.Fatal(err)
	}
	if err := interrupted.Transition(pattern.StatusHealing); err != nil {
		t.Fatal(err)
	}
	interrupted.RecordAttempt(pattern.HealAttempt{Strategy: "full-heal", Before: 0.4, After: 0.5, Outcome: "still-below-threshold"})
	if err := l.Append(ctx, EventHealing, interrupted); err != nil {
		t.Fatal(err)
	}

	restored, err := l.Restore(ctx, DefaultReplayLimit)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	byID := make(map[string]*pattern.CapturedFailure)
	for _, cf := range restored {
		byID[cf.ID] = cf
	}

	if len(restored) != 2 {
		t.Fatalf("restored %d entries, want 2", len(restored))
	}
	if _, ok := byID[healed.ID]; ok {
		t.Error("terminal failure came back from restore")
	}
	if got := byID[pendingCF.ID]; got == nil || got.Status != pattern.StatusPending {
		t.Errorf("pending failure not restored as pending: %+v", got)
	}
	mid := byID[interrupted.ID]
	if mid == nil {
		t.Fatal("mid-heal failure missing from restore")
	}
	if mid.Status != pattern.StatusPending {
		t.Errorf("mid-heal status = %s, want pending", mid.Status)
	}
	if mid.Attempts != 1 || len(mid.History) != 1 {
		t.Errorf("mid-heal attempts lost: attempts=%d history=%d", mid.Attempts, len(mid.History))
	}
}

func TestRestoreOnEmptyLog(t *testing.T) {
	l := openTestLog(t)

	restored, err := l.Restore(context.Background(), 0)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if len(restored) != 0 {
		t.Errorf("restored %d entries from an empty log", len(restored))
	}
}
