package signal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/railflux"
)

func TestResolve(t *testing.T) {
	r := Resolver{
		CellSize:  2,
		Crossings: map[string][2]float64{"LC1": {10, 20}},
	}
	got := r.Resolve(Records{
		Starters: []StarterRecord{
			{Row: 1, Col: 2, Status: 2, Protects: "T1/S1"},
			{Row: 1, Col: 2, Status: 7},
			{Row: 3, Col: 4, Status: 0, Protects: "bogus"},
		},
		Gates: map[string]bool{"LC1": true, "LC9": false},
		AxleCounters: []AxleCounterRecord{
			{ID: "AC1", Row: 5, Col: 6, Active: true, Visible: true},
			{ID: "AC2", Row: 5, Col: 6, Active: true, Visible: false},
			{Row: 7, Col: 8, Visible: true},
		},
	})
	expected := []Signal{
		{Kind: KindStarter, ID: "starter0", Position: railflux.Point{X: 4, Y: 2}, Status: Clear, Protects: railflux.SegmentRef{Track: "T1", Segment: "S1"}},
		{Kind: KindStarter, ID: "starter2", Position: railflux.Point{X: 8, Y: 6}, Status: Danger},
		{Kind: KindLevelCrossing, ID: "LC1", Position: railflux.Point{X: 40, Y: 20}, Status: GateClosed},
		{Kind: KindAxleCounter, ID: "AC1", Position: railflux.Point{X: 12, Y: 10}, Status: CounterActive},
		{Kind: KindAxleCounter, ID: "axle2", Position: railflux.Point{X: 16, Y: 14}, Status: CounterIdle},
	}
	if !cmp.Equal(got, expected) {
		t.Fatalf("Resolve diff: %s", cmp.Diff(expected, got))
	}
}

func TestProtect(t *testing.T) {
	guarded := railflux.SegmentRef{Track: "T1", Segment: "S4"}
	sigs := []Signal{
		{Kind: KindStarter, Status: Clear, Protects: guarded},
		{Kind: KindStarter, Status: Caution},
		{Kind: KindAxleCounter, Status: CounterActive, Protects: guarded},
	}
	occupied := func(ref railflux.SegmentRef) bool { return ref == guarded }
	got := Protect(sigs, occupied)
	if got[0].Status != Danger {
		t.Fatalf("guarding starter: expected danger, got %s", got[0].Status)
	}
	if got[1].Status != Caution {
		t.Fatalf("unguarded starter changed to %s", got[1].Status)
	}
	if got[2].Status != CounterActive {
		t.Fatalf("axle counter changed to %s", got[2].Status)
	}
	if sigs[0].Status != Clear {
		t.Fatalf("Protect must not modify its input")
	}
}

func TestPresetResolves(t *testing.T) {
	r := Resolver{CellSize: 1, Crossings: PresetCrossings()}
	recs := PresetRecords()
	got := r.Resolve(recs)
	if len(got) != len(recs.Starters)+len(recs.Gates)+len(recs.AxleCounters) {
		t.Fatalf("expected every preset record to resolve, got %d", len(got))
	}
}

func TestRecordsEmpty(t *testing.T) {
	if !(Records{}).Empty() {
		t.Fatalf("zero Records must be empty")
	}
	if (Records{Gates: map[string]bool{}}).Empty() {
		t.Fatalf("present-but-empty gates is still data")
	}
}
