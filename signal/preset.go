package signal

// PresetRecords returns the lineside equipment matching layout.PresetRailflux.
func PresetRecords() Records {
	return Records{
		Starters: []StarterRecord{
			{Row: 58, Col: 48, Status: int(Clear), Protects: "T1/S4"},
			{Row: 72, Col: 88, Status: int(Caution), Protects: "T2/S4"},
			{Row: 38, Col: 148, Status: int(Danger)},
		},
		Gates: map[string]bool{
			"LC1": false,
		},
		AxleCounters: []AxleCounterRecord{
			{ID: "AC1", Row: 60, Col: 90, Active: true, Visible: true},
			{ID: "AC2", Row: 70, Col: 120, Active: false, Visible: true},
			{ID: "AC3", Row: 80, Col: 150, Active: true, Visible: true},
			{ID: "AC4", Row: 90, Col: 180, Active: false, Visible: true},
			{ID: "AC5", Row: 40, Col: 130, Active: true, Visible: true},
		},
	}
}

// PresetCrossings returns the gate positions for PresetRecords.
func PresetCrossings() map[string][2]float64 {
	return map[string][2]float64{
		"LC1": {65, 225},
	}
}
