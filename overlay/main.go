// Package overlay loads text labels drawn on top of the track diagram.
//
// A label file has one label per line:
//
//	Text|Row|Col|FontSize
//
// FontSize is optional. Blank lines and lines starting with # are ignored.
package overlay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"nyiyui.ca/hato/railflux"
)

const DefaultFontSize = 16

type Label struct {
	Text     string         `json:"text"`
	Row      float64        `json:"row"`
	Col      float64        `json:"col"`
	Position railflux.Point `json:"position"`
	FontSize int            `json:"font_size"`
}

// Parse reads labels from r. Malformed lines are skipped.
func Parse(r io.Reader, cellSize float64) ([]Label, error) {
	res := make([]Label, 0)
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l, err := parseLine(line, cellSize)
		if err != nil {
			zap.S().Warnw("skipping label", "line", lineno, "err", err)
			continue
		}
		res = append(res, l)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return res, nil
}

func parseLine(line string, cellSize float64) (Label, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return Label{}, fmt.Errorf("expected at least 3 fields, got %d", len(parts))
	}
	row, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Label{}, fmt.Errorf("row: %w", err)
	}
	col, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return Label{}, fmt.Errorf("col: %w", err)
	}
	l := Label{
		Text:     parts[0],
		Row:      row,
		Col:      col,
		Position: railflux.GridToPixel(row, col, cellSize),
		FontSize: DefaultFontSize,
	}
	if len(parts) >= 4 && strings.TrimSpace(parts[3]) != "" {
		l.FontSize, err = strconv.Atoi(strings.TrimSpace(parts[3]))
		if err != nil {
			return Label{}, fmt.Errorf("font size: %w", err)
		}
	}
	return l, nil
}

// Load reads the label file at path.
func Load(path string, cellSize float64) ([]Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, cellSize)
}
