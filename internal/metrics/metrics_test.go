package metrics

import (
	"strings"
	"testing"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Fix("in_place")
	r.Sweep()
	r.Rounds("g", 2)
	r.Channel("g", "flat", 3)
	r.Graph("ok")
	snapshot, err := r.Snapshot()
	if err != nil || len(snapshot) != 0 {
		t.Fatalf("expected empty snapshot, got %v %v", snapshot, err)
	}
}

func TestSnapshotReportsSamples(t *testing.T) {
	r := New()
	r.Fix("in_place")
	r.Fix("in_place")
	r.Fix("new_segment")
	r.Sweep()
	r.Rounds("chain", 2)
	r.Channel("chain", "flat", 2)
	r.Channel("chain", "circular", 4)
	r.Channel("chain", "flat", 3)
	r.Graph("ok")

	snapshot, err := r.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	expect := map[string]float64{
		`streamsynth_balance_fixes_total{kind="in_place"}`:    2,
		`streamsynth_balance_fixes_total{kind="new_segment"}`: 1,
		`streamsynth_balance_sweeps_total`:                    1,
		`streamsynth_primepump_rounds{graph="chain"}`:         2,
		`streamsynth_buffer_channels_total{layout="flat"}`:    2,
		`streamsynth_buffer_max_rotation{graph="chain"}`:      4,
		`streamsynth_graphs_total{result="ok"}`:               1,
	}
	for key, want := range expect {
		if got, ok := snapshot[key]; !ok || got != want {
			t.Errorf("%s: got %v (present=%v) want %v", key, got, ok, want)
		}
	}
	if summary := r.Summary(); !strings.Contains(summary, "streamsynth_balance_sweeps_total=1") {
		t.Fatalf("unexpected summary %q", summary)
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Sweep()
	snapshot, err := b.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot["streamsynth_balance_sweeps_total"] != 0 {
		t.Fatalf("recorders share state: %v", snapshot)
	}
}
