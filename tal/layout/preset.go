package layout

import "strconv"

// TrackData is a whole track as provided by an external source.
type TrackData struct {
	ID       string        `json:"id"`
	Segments []SegmentData `json:"segments"`
}

func straight(id string, from, to [2]float64) SegmentData {
	return SegmentData{ID: id, Coordinates: [][2]float64{from, to}}
}

// PresetRailflux returns the station layout used for demos and seeding.
// All coordinates are (row, col).
func PresetRailflux() []TrackData {
	main := func(row float64, cols ...float64) []SegmentData {
		res := make([]SegmentData, 0, len(cols)-1)
		for i := 0; i+1 < len(cols); i++ {
			res = append(res, straight(
				"S"+strconv.Itoa(i+1),
				[2]float64{row, cols[i]},
				[2]float64{row, cols[i+1]},
			))
		}
		return res
	}
	return []TrackData{
		{"T1", main(60, 0, 10, 30, 50, 100, 120, 160, 180, 200, 250)},
		{"T2", main(70, 0, 53, 70, 90, 119, 163, 182, 200, 250)},
		// crossover between T2 and T1
		{"T3", []SegmentData{
			straight("S1", [2]float64{70, 95}, [2]float64{65, 100}),
			straight("S2", [2]float64{65, 100}, [2]float64{60, 105}),
		}},
		// loop line
		{"T4", main(40, 100, 110, 135, 150, 180)},
		{"T5", []SegmentData{straight("S1", [2]float64{60, 110}, [2]float64{40, 130})}},
		{"T6", []SegmentData{straight("S1", [2]float64{40, 170}, [2]float64{60, 190})}},
		// siding
		{"T7", main(90, 110, 130, 140, 180)},
		{"T8", []SegmentData{straight("S1", [2]float64{70, 100}, [2]float64{90, 120})}},
		{"T9", []SegmentData{straight("S1", [2]float64{90, 170}, [2]float64{70, 190})}},
	}
}

// InitRailflux returns a Network loaded with PresetRailflux.
func InitRailflux(cellSize float64, w OccupancyWriter) *Network {
	y := New(cellSize, w)
	for _, td := range PresetRailflux() {
		y.LoadSegments(td.ID, td.Segments)
	}
	return y
}
