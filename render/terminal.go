package render

import (
	"fmt"
	"image"
	"math"
	"strings"
	"sync"

	"github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/signal"
)

const legendHeight = 8

// Terminal draws frames as a braille diagram with termui.
type Terminal struct {
	lock    sync.Mutex
	diagram *diagram
	legend  *widgets.Paragraph
}

// NewTerminal takes over the terminal. Close must be called to give it back.
func NewTerminal() (*Terminal, error) {
	if err := termui.Init(); err != nil {
		return nil, fmt.Errorf("termui init: %w", err)
	}
	t := &Terminal{
		diagram: newDiagram(),
		legend:  widgets.NewParagraph(),
	}
	t.diagram.Title = "railflux"
	t.legend.Title = "legend"
	t.resize()
	return t, nil
}

func (t *Terminal) resize() {
	w, h := termui.TerminalDimensions()
	if h <= legendHeight+2 {
		h = legendHeight + 3
	}
	t.diagram.SetRect(0, 0, w, h-legendHeight)
	t.legend.SetRect(0, h-legendHeight, w, h)
}

func (t *Terminal) Render(f Frame) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.diagram.update(f)
	t.legend.Text = legendText(f)
	termui.Render(t.diagram, t.legend)
}

// Quit returns a channel closed when the user asks to quit (q or Ctrl-C).
// Resize events are handled while waiting.
func (t *Terminal) Quit() <-chan struct{} {
	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for e := range termui.PollEvents() {
			switch e.ID {
			case "q", "<C-c>":
				return
			case "<Resize>":
				func() {
					t.lock.Lock()
					defer t.lock.Unlock()
					termui.Clear()
					t.resize()
				}()
			}
		}
	}()
	return quit
}

func (t *Terminal) Close() {
	termui.Close()
}

func legendText(f Frame) string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "tick %d  [occupied](fg:red) [free](fg:white) [train](fg:yellow)\n", f.Tick)
	for _, tr := range f.Trains {
		seg := "-"
		if !tr.Segment.IsZero() {
			seg = tr.Segment.String()
		}
		fmt.Fprintf(b, "%s at %s in %s\n", tr.ID, tr.Position, seg)
	}
	occupied := f.Occupied()
	names := make([]string, len(occupied))
	for i, ref := range occupied {
		names[i] = ref.String()
	}
	fmt.Fprintf(b, "occupied: %s", strings.Join(names, " "))
	return b.String()
}

// diagram draws the track network on a braille canvas, with text labels on top.
type diagram struct {
	termui.Block
	frame Frame
}

func newDiagram() *diagram {
	return &diagram{Block: *termui.NewBlock()}
}

func (d *diagram) update(f Frame) {
	d.frame = f
}

func (d *diagram) Draw(buf *termui.Buffer) {
	d.Block.Draw(buf)
	inner := d.Inner
	p := fit(frameBounds(d.frame), inner.Dx()*2, inner.Dy()*4)
	p.offset = image.Pt(inner.Min.X*2, inner.Min.Y*4)
	c := termui.NewCanvas()
	c.Rectangle = inner
	for _, s := range d.frame.Segments {
		color := termui.ColorWhite
		if s.Occupied {
			color = termui.ColorRed
		}
		for i := 0; i+1 < len(s.Pixels); i++ {
			c.SetLine(p.dot(s.Pixels[i]), p.dot(s.Pixels[i+1]), color)
		}
	}
	for _, sig := range d.frame.Signals {
		drawSignal(c, p, sig)
	}
	for _, tr := range d.frame.Trains {
		for _, w := range tr.Wagons {
			c.SetPoint(p.dot(w), termui.ColorYellow)
		}
		c.SetPoint(p.dot(tr.Position), termui.ColorYellow)
	}
	c.Draw(buf)
	for _, l := range d.frame.Labels {
		dot := p.dot(l.Position)
		at := image.Pt(dot.X/2, dot.Y/4)
		if !at.In(inner) {
			continue
		}
		buf.SetString(l.Text, termui.NewStyle(termui.ColorCyan), at)
	}
}

// signalColor picks the colour a signal is drawn in.
func signalColor(sig signal.Signal) termui.Color {
	switch sig.Status {
	case signal.Danger, signal.GateClosed:
		return termui.ColorRed
	case signal.Caution:
		return termui.ColorYellow
	case signal.Clear, signal.GateOpen:
		return termui.ColorGreen
	case signal.CounterActive:
		return termui.ColorMagenta
	case signal.CounterIdle:
		return termui.ColorBlue
	default:
		return termui.ColorWhite
	}
}

// drawSignal draws any kind of signal.
func drawSignal(c *termui.Canvas, p projection, sig signal.Signal) {
	at := p.dot(sig.Position)
	color := signalColor(sig)
	switch sig.Kind {
	case signal.KindStarter:
		// post and head
		c.SetLine(at, at.Add(image.Pt(0, -3)), termui.ColorWhite)
		c.SetPoint(at.Add(image.Pt(0, -4)), color)
		c.SetPoint(at.Add(image.Pt(1, -4)), color)
	case signal.KindLevelCrossing:
		c.SetLine(at.Add(image.Pt(-2, -2)), at.Add(image.Pt(2, 2)), color)
		c.SetLine(at.Add(image.Pt(-2, 2)), at.Add(image.Pt(2, -2)), color)
	case signal.KindAxleCounter:
		c.SetPoint(at, color)
		c.SetPoint(at.Add(image.Pt(1, 0)), color)
	}
}

type bounds struct {
	min, max railflux.Point
	ok       bool
}

func (b *bounds) add(p railflux.Point) {
	if !b.ok {
		b.min, b.max, b.ok = p, p, true
		return
	}
	b.min.X = math.Min(b.min.X, p.X)
	b.min.Y = math.Min(b.min.Y, p.Y)
	b.max.X = math.Max(b.max.X, p.X)
	b.max.Y = math.Max(b.max.Y, p.Y)
}

func frameBounds(f Frame) bounds {
	var b bounds
	for _, s := range f.Segments {
		for _, p := range s.Pixels {
			b.add(p)
		}
	}
	for _, sig := range f.Signals {
		b.add(sig.Position)
	}
	return b
}

// projection maps pixel space onto canvas dots, keeping the aspect ratio.
type projection struct {
	origin railflux.Point
	scale  float64
	offset image.Point
}

// fit returns a projection placing b inside a w×h dot area with a 1-dot margin.
func fit(b bounds, w, h int) projection {
	if !b.ok {
		return projection{scale: 1}
	}
	spanX := b.max.X - b.min.X
	spanY := b.max.Y - b.min.Y
	availX := float64(w - 3)
	availY := float64(h - 3)
	scale := math.Inf(1)
	if spanX > 0 {
		scale = math.Min(scale, availX/spanX)
	}
	if spanY > 0 {
		scale = math.Min(scale, availY/spanY)
	}
	if math.IsInf(scale, 1) || scale <= 0 {
		scale = 1
	}
	return projection{
		origin: b.min.Sub(railflux.Point{X: 1 / scale, Y: 1 / scale}),
		scale:  scale,
	}
}

func (p projection) dot(pt railflux.Point) image.Point {
	d := pt.Sub(p.origin).Scale(p.scale)
	return image.Pt(int(math.Round(d.X)), int(math.Round(d.Y))).Add(p.offset)
}
