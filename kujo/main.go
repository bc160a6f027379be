// Package kujo serves the simulator state over HTTP: a JSON snapshot,
// server-sent events and a small status page.
package kujo

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
	"nyiyui.ca/hato/railflux"
	"nyiyui.ca/hato/railflux/render"
	"nyiyui.ca/hato/railflux/tal"
)

const (
	StreamSnapshot  = "snapshot"
	StreamOccupancy = "occupancy"
)

//go:embed index.html
var templates embed.FS

type Conf struct {
	CORSOrigins []string
}

type Server struct {
	sim *tal.Simulator
	s   *sse.Server
	r   chi.Router
	t   *template.Template

	frames chan render.Frame
	events chan tal.Event
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewServer(sim *tal.Simulator, conf Conf) *Server {
	s := &Server{
		sim:    sim,
		s:      sse.New(),
		frames: make(chan render.Frame, 1),
		events: make(chan tal.Event, 64),
		done:   make(chan struct{}),
	}
	s.s.AutoReplay = false
	s.s.CreateStream(StreamSnapshot)
	s.s.CreateStream(StreamOccupancy)
	s.t = template.Must(template.New("index.html").Funcs(sprig.FuncMap()).ParseFS(templates, "index.html"))

	r := chi.NewRouter()
	origins := conf.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Get("/", s.index)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/snapshot", s.snapshot)
	r.Get("/segments/{track}/{segment}", s.segment)
	r.Get("/events", s.s.ServeHTTP)
	s.r = r

	sim.Frames().Subscribe("kujo", s.frames)
	sim.Events().Subscribe("kujo", s.events)
	s.wg.Add(1)
	go s.forward()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Close stops forwarding and closes every SSE stream.
func (s *Server) Close() {
	s.sim.Frames().Unsubscribe(s.frames)
	s.sim.Events().Unsubscribe(s.events)
	close(s.done)
	s.wg.Wait()
	s.s.Close()
}

func (s *Server) forward() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case f := <-s.frames:
			s.publish(StreamSnapshot, snapshotOf(f))
		case ev := <-s.events:
			s.publish(StreamOccupancy, ev)
		}
	}
}

func (s *Server) publish(stream string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.S().Errorw("kujo: marshal json", "stream", stream, "err", err)
		return
	}
	s.s.TryPublish(stream, &sse.Event{Data: data})
}

// Snapshot is the body of GET /snapshot.
type Snapshot struct {
	RunID string       `json:"run_id"`
	Frame render.Frame `json:"frame"`
}

func snapshotOf(f render.Frame) Snapshot {
	return Snapshot{RunID: f.RunID, Frame: f}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("kujo: write response", "err", err)
	}
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	f, ok := s.sim.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no frame yet"})
		return
	}
	writeJSON(w, http.StatusOK, snapshotOf(f))
}

// SegmentState is the body of GET /segments/{track}/{segment}.
type SegmentState struct {
	Ref         railflux.SegmentRef `json:"ref"`
	Coordinates [][2]float64        `json:"coordinates"`
	Occupied    bool                `json:"occupied"`
	Holders     []string            `json:"holders"`
}

func (s *Server) segment(w http.ResponseWriter, r *http.Request) {
	ref := railflux.SegmentRef{
		Track:   chi.URLParam(r, "track"),
		Segment: chi.URLParam(r, "segment"),
	}
	seg, ok := s.sim.Network().Lookup(ref)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown segment " + ref.String()})
		return
	}
	writeJSON(w, http.StatusOK, SegmentState{
		Ref:         ref,
		Coordinates: seg.Coordinates,
		Occupied:    seg.Occupied,
		Holders:     s.sim.Claims().Holders(ref),
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	f, _ := s.sim.Latest()
	data := map[string]interface{}{
		"RunID":    s.sim.RunID.String(),
		"Frame":    f,
		"Occupied": f.Occupied(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.t.Execute(w, data); err != nil {
		zap.S().Errorw("kujo: render index", "err", err)
	}
}
