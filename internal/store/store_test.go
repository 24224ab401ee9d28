package store

import (
	"errors"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/ring"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	if v := db.GetSetting("jwt_secret"); v != "" {
		t.Errorf("expected empty setting, got %q", v)
	}
	if err := db.SetSetting("jwt_secret", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting("jwt_secret", "def"); err != nil {
		t.Fatal(err)
	}
	if v := db.GetSetting("jwt_secret"); v != "def" {
		t.Errorf("setting = %q, want def", v)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	db := openTestDB(t)
	cp := &ring.Checkpoint{
		Pos:   [][]r2.Vec{{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}}},
		Angle: []float64{0.25},
		UIDs:  []int{12},
		Slots: []int{3},
	}
	id, err := db.SaveCheckpoint("after warmup", 150, 1.5, cp)
	if err != nil {
		t.Fatal(err)
	}

	row, got, err := db.GetCheckpoint(id)
	if err != nil {
		t.Fatal(err)
	}
	if row.Label != "after warmup" || row.Step != 150 || row.SimTime != 1.5 || row.Rings != 1 {
		t.Errorf("unexpected row: %+v", row)
	}
	if got.Pos[0][2] != (r2.Vec{X: 5, Y: 6}) || got.UIDs[0] != 12 || got.Slots[0] != 3 || got.Angle[0] != 0.25 {
		t.Errorf("payload mismatch: %+v", got)
	}

	if _, _, err := db.GetCheckpoint(id + 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListCheckpointsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	cp := &ring.Checkpoint{}
	for _, label := range []string{"a", "b", "c"} {
		if _, err := db.SaveCheckpoint(label, 0, 0, cp); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := db.ListCheckpoints(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Label != "c" || rows[1].Label != "b" {
		t.Errorf("unexpected listing: %+v", rows)
	}
}

func TestRecorderFlushesOnStop(t *testing.T) {
	db := openTestDB(t)
	r := NewRecorder(db)
	for step := 1; step <= 120; step++ {
		r.Track(StepStat{Step: step, SimTime: float64(step) * 0.01, Active: 16})
	}
	r.SetViewers(3)
	r.Stop()

	viewers, last, _ := r.Live()
	if viewers != 3 || last.Step != 120 {
		t.Errorf("live = %d viewers, last step %d", viewers, last.Step)
	}

	stats, err := db.RecentStats(500)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 120 {
		t.Fatalf("stored %d stats, want 120", len(stats))
	}
	if stats[0].Step != 120 || stats[0].Active != 16 || stats[0].At.IsZero() {
		t.Errorf("unexpected newest stat: %+v", stats[0])
	}
}

func TestRecorderWithoutDB(t *testing.T) {
	r := NewRecorder(nil)
	r.Track(StepStat{Step: 1})
	r.Stop()
	if _, last, _ := r.Live(); last.Step != 1 {
		t.Errorf("last step = %d, want 1", last.Step)
	}
}
