// Package signal holds the lineside equipment shown next to the track:
// starter signals, level crossings and axle counters.
package signal

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railflux"
)

type Kind int

const (
	KindInvalid Kind = iota
	KindStarter
	KindLevelCrossing
	KindAxleCounter
)

func (k Kind) String() string {
	switch k {
	case KindStarter:
		return "starter"
	case KindLevelCrossing:
		return "level-crossing"
	case KindAxleCounter:
		return "axle-counter"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Status int

const (
	// Starter aspects; the numbering matches the stored status values.
	Danger Status = iota
	Caution
	Clear

	GateOpen
	GateClosed

	CounterIdle
	CounterActive
)

func (s Status) String() string {
	switch s {
	case Danger:
		return "danger"
	case Caution:
		return "caution"
	case Clear:
		return "clear"
	case GateOpen:
		return "gate-open"
	case GateClosed:
		return "gate-closed"
	case CounterIdle:
		return "counter-idle"
	case CounterActive:
		return "counter-active"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Signal is one piece of lineside equipment, ready to be drawn.
type Signal struct {
	Kind     Kind           `json:"kind"`
	ID       string         `json:"id,omitempty"`
	Position railflux.Point `json:"position"`
	Status   Status         `json:"status"`
	// Protects is the segment a starter guards, if any.
	Protects railflux.SegmentRef `json:"protects"`
}

// StarterRecord is a starter signal as stored under /signals/starters.
type StarterRecord struct {
	Row    float64 `json:"row"`
	Col    float64 `json:"col"`
	Status int     `json:"status"`
	// Protects is an optional "track/segment" reference.
	Protects string `json:"protects,omitempty"`
}

// AxleCounterRecord is an axle counter as stored under /signals/axle_counters.
type AxleCounterRecord struct {
	ID      string  `json:"id,omitempty"`
	Row     float64 `json:"row"`
	Col     float64 `json:"col"`
	Active  bool    `json:"active"`
	Visible bool    `json:"visible"`
}

// Records is everything stored under /signals.
// A nil field means the source had nothing for it.
type Records struct {
	Starters []StarterRecord `json:"starters"`
	// Gates maps a gate ID to whether its barriers are down.
	Gates        map[string]bool     `json:"lc_gates"`
	AxleCounters []AxleCounterRecord `json:"axle_counters"`
}

// Empty reports whether r has no data at all.
func (r Records) Empty() bool {
	return r.Starters == nil && r.Gates == nil && r.AxleCounters == nil
}

// Resolver turns stored records into Signals.
type Resolver struct {
	CellSize float64
	// Crossings has the (row, col) of every known level crossing gate.
	Crossings map[string][2]float64
}

// Resolve converts recs. Records that can't be placed or have an unknown status are skipped.
func (r Resolver) Resolve(recs Records) []Signal {
	res := make([]Signal, 0, len(recs.Starters)+len(recs.Gates)+len(recs.AxleCounters))
	for i, sr := range recs.Starters {
		if sr.Status < int(Danger) || sr.Status > int(Clear) {
			zap.S().Warnw("unknown starter status", "index", i, "status", sr.Status)
			continue
		}
		sig := Signal{
			Kind:     KindStarter,
			ID:       fmt.Sprintf("starter%d", i),
			Position: railflux.GridToPixel(sr.Row, sr.Col, r.CellSize),
			Status:   Status(sr.Status),
		}
		if sr.Protects != "" {
			ref, err := railflux.ParseSegmentRef(sr.Protects)
			if err != nil {
				zap.S().Warnw("starter protects nothing", "index", i, "err", err)
			} else {
				sig.Protects = ref
			}
		}
		res = append(res, sig)
	}
	gateIDs := make([]string, 0, len(recs.Gates))
	for id := range recs.Gates {
		gateIDs = append(gateIDs, id)
	}
	slices.Sort(gateIDs)
	for _, id := range gateIDs {
		pos, ok := r.Crossings[id]
		if !ok {
			zap.S().Warnw("unknown level crossing gate", "gate", id)
			continue
		}
		status := GateOpen
		if recs.Gates[id] {
			status = GateClosed
		}
		res = append(res, Signal{
			Kind:     KindLevelCrossing,
			ID:       id,
			Position: railflux.GridToPixel(pos[0], pos[1], r.CellSize),
			Status:   status,
		})
	}
	for i, ar := range recs.AxleCounters {
		if !ar.Visible {
			continue
		}
		id := ar.ID
		if id == "" {
			id = fmt.Sprintf("axle%d", i)
		}
		status := CounterIdle
		if ar.Active {
			status = CounterActive
		}
		res = append(res, Signal{
			Kind:     KindAxleCounter,
			ID:       id,
			Position: railflux.GridToPixel(ar.Row, ar.Col, r.CellSize),
			Status:   status,
		})
	}
	return res
}

// Protect returns a copy of sigs where every starter guarding an occupied segment shows Danger.
func Protect(sigs []Signal, occupied func(railflux.SegmentRef) bool) []Signal {
	res := make([]Signal, len(sigs))
	copy(res, sigs)
	for i, sig := range res {
		if sig.Kind != KindStarter || sig.Protects.IsZero() {
			continue
		}
		if occupied(sig.Protects) {
			res[i].Status = Danger
		}
	}
	return res
}
