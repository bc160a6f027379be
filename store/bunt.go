package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"
	"go.uber.org/zap"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/signal"
)

const signalsPrefix = "/signals/"

func segmentKey(ref railflux.SegmentRef, leaf string) string {
	return fmt.Sprintf("/tracks/%s/segments/%s/%s", ref.Track, ref.Segment, leaf)
}

// parseSeqKey parses "/tracks/{t}/segments/{s}/seq".
func parseSeqKey(key string) (railflux.SegmentRef, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 6 || parts[1] != "tracks" || parts[3] != "segments" || parts[5] != "seq" {
		return railflux.SegmentRef{}, false
	}
	return railflux.SegmentRef{Track: parts[2], Segment: parts[4]}, true
}

// Bunt is a Store on a buntdb file, laid out as a tree of slash-separated keys.
type Bunt struct {
	db *buntdb.DB
}

// OpenBunt opens (or creates) the buntdb file at path. Use ":memory:" for a throwaway store.
func OpenBunt(path string) (*Bunt, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open buntdb %s: %w", path, err)
	}
	err = db.CreateIndex("seq", "/tracks/*/seq", buntdb.IndexInt)
	if err != nil && !errors.Is(err, buntdb.ErrIndexExists) {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Bunt{db: db}, nil
}

// refs returns every stored segment in seeding order.
func (b *Bunt) refs(tx *buntdb.Tx) ([]railflux.SegmentRef, error) {
	res := make([]railflux.SegmentRef, 0)
	err := tx.Ascend("seq", func(key, value string) bool {
		ref, ok := parseSeqKey(key)
		if !ok {
			zap.S().Warnw("ignoring malformed key", "key", key)
			return true
		}
		res = append(res, ref)
		return true
	})
	return res, err
}

func (b *Bunt) Tracks(ctx context.Context) ([]string, error) {
	res := make([]string, 0)
	err := b.db.View(func(tx *buntdb.Tx) error {
		refs, err := b.refs(tx)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, ref := range refs {
			if !seen[ref.Track] {
				seen[ref.Track] = true
				res = append(res, ref.Track)
			}
		}
		return nil
	})
	return res, err
}

func (b *Bunt) Segments(ctx context.Context, trackID string) ([]SegmentRecord, error) {
	res := make([]SegmentRecord, 0)
	err := b.db.View(func(tx *buntdb.Tx) error {
		refs, err := b.refs(tx)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if ref.Track != trackID {
				continue
			}
			sr := SegmentRecord{ID: ref.Segment}
			raw, err := tx.Get(segmentKey(ref, "coordinates"))
			if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &sr.Coordinates); err != nil {
					zap.S().Warnw("malformed coordinates", "ref", ref, "err", err)
				}
			}
			raw, err = tx.Get(segmentKey(ref, "occupied"))
			if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
			sr.Occupied = raw == "true"
			res = append(res, sr)
		}
		return nil
	})
	return res, err
}

func (b *Bunt) SetOccupied(ctx context.Context, ref railflux.SegmentRef, occupied bool) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(segmentKey(ref, "seq")); err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return fmt.Errorf("%s: %w", ref, ErrUnknownSegment)
			}
			return err
		}
		_, _, err := tx.Set(segmentKey(ref, "occupied"), strconv.FormatBool(occupied), nil)
		return err
	})
}

func (b *Bunt) Signals(ctx context.Context) (signal.Records, error) {
	var recs signal.Records
	err := b.db.View(func(tx *buntdb.Tx) error {
		for _, row := range []string{rowStarters, rowGates, rowAxleCounters} {
			raw, err := tx.Get(signalsPrefix + row)
			if errors.Is(err, buntdb.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := decodeSignal(&recs, row, raw); err != nil {
				return err
			}
		}
		return nil
	})
	return recs, err
}

func (b *Bunt) Seed(ctx context.Context, s Seed) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		if err := tx.DeleteAll(); err != nil {
			return err
		}
		seq := 0
		for _, t := range s.Tracks {
			for _, sd := range t.Segments {
				ref := railflux.SegmentRef{Track: t.ID, Segment: sd.ID}
				if _, err := railflux.ParseSegmentRef(ref.String()); err != nil {
					return err
				}
				if _, err := tx.Get(segmentKey(ref, "seq")); err == nil {
					zap.S().Warnw("skipping duplicate segment", "ref", ref)
					continue
				}
				coords, err := json.Marshal(sd.Coordinates)
				if err != nil {
					return err
				}
				sets := [][2]string{
					{segmentKey(ref, "coordinates"), string(coords)},
					{segmentKey(ref, "occupied"), strconv.FormatBool(sd.Occupied)},
					{segmentKey(ref, "seq"), strconv.Itoa(seq)},
				}
				for _, kv := range sets {
					if _, _, err := tx.Set(kv[0], kv[1], nil); err != nil {
						return err
					}
				}
				seq++
			}
		}
		rows, err := encodeSignals(s.Signals)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if _, _, err := tx.Set(signalsPrefix+row[0], row[1], nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bunt) Close() error {
	return b.db.Close()
}
