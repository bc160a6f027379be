package store

import (
	"encoding/json"
	"fmt"

	"nyiyui.ca/hato/railflux/signal"
)

// Signal rows are stored under the leaf names of the buntdb keys.
const (
	rowStarters     = "starters"
	rowGates        = "lc_gates"
	rowAxleCounters = "axle_counters"
)

// encodeSignals returns (key, JSON) for every present field of recs.
func encodeSignals(recs signal.Records) ([][2]string, error) {
	res := make([][2]string, 0, 3)
	add := func(key string, v interface{}) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		res = append(res, [2]string{key, string(data)})
		return nil
	}
	if recs.Starters != nil {
		if err := add(rowStarters, recs.Starters); err != nil {
			return nil, err
		}
	}
	if recs.Gates != nil {
		if err := add(rowGates, recs.Gates); err != nil {
			return nil, err
		}
	}
	if recs.AxleCounters != nil {
		if err := add(rowAxleCounters, recs.AxleCounters); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// decodeSignal unmarshals one stored row into recs. Unknown keys are ignored.
func decodeSignal(recs *signal.Records, key, raw string) error {
	var dst interface{}
	switch key {
	case rowStarters:
		dst = &recs.Starters
	case rowGates:
		dst = &recs.Gates
	case rowAxleCounters:
		dst = &recs.AxleCounters
	default:
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
