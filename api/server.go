package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"warpcorp.dev/timetable"
	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
)

const DefaultTimeout = 15 * time.Second

// Returns the schedule to serve line and timetable requests from.
// Typically Manager.LoadScheduleAsync bound to the configured feed.
type ScheduleFunc func(ctx context.Context) (*timetable.Schedule, error)

type Server struct {
	log       *zap.Logger
	schedule  ScheduleFunc
	directory timetable.DistrictDirectory
	searcher  timetable.RouteSearcher

	Timeout time.Duration
}

func NewServer(
	log *zap.Logger,
	schedule ScheduleFunc,
	directory timetable.DistrictDirectory,
	searcher timetable.RouteSearcher,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:       log,
		schedule:  schedule,
		directory: directory,
		searcher:  searcher,
		Timeout:   DefaultTimeout,
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))

	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/districts", s.handleDistricts).Methods(http.MethodGet)
	v1.HandleFunc("/lines", s.handleLines).Methods(http.MethodGet)
	v1.HandleFunc("/lines/{code}/timetables", s.handleTimetables).Methods(http.MethodGet)
	v1.HandleFunc("/lines/{code}/timetables/{departure}", s.handleTimetable).Methods(http.MethodGet)
	v1.HandleFunc("/routes", s.handleRoutes).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("op", op), zap.Error(err))
	} else {
		s.log.Debug("request rejected", zap.String("op", op), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func (s *Server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	const op = "api.Server.handleDistricts"

	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()

	districts, err := s.directory.Districts(ctx)
	if err != nil {
		s.fail(w, op, err)
		return
	}

	writeJSON(w, http.StatusOK, districts)
}

// Lists every line, each followed by its reverse direction when the
// feed has one.
func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	const op = "api.Server.handleLines"

	schedule, err := s.schedule(r.Context())
	if err != nil {
		s.fail(w, op, err)
		return
	}

	lines, err := schedule.Lines()
	if err != nil {
		s.fail(w, op, err)
		return
	}

	known := map[string]bool{}
	for _, l := range lines {
		known[l.Code] = true
	}

	result := []model.Line{}
	for _, l := range lines {
		base := strings.TrimSuffix(l.Code, model.ReverseSuffix)
		if base != l.Code && known[base] {
			// Listed with its base line
			continue
		}

		directions, err := schedule.Directions(l.Code)
		if err != nil {
			s.fail(w, op, err)
			return
		}
		result = append(result, directions...)
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTimetables(w http.ResponseWriter, r *http.Request) {
	const op = "api.Server.handleTimetables"

	schedule, err := s.schedule(r.Context())
	if err != nil {
		s.fail(w, op, err)
		return
	}

	tables, err := schedule.Timetables(mux.Vars(r)["code"])
	if err != nil {
		s.fail(w, op, err)
		return
	}

	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	const op = "api.Server.handleTimetable"
	vars := mux.Vars(r)

	departure, err := clock.Parse(vars["departure"])
	if err != nil {
		s.fail(w, op, err)
		return
	}

	schedule, err := s.schedule(r.Context())
	if err != nil {
		s.fail(w, op, err)
		return
	}

	table, err := schedule.Timetable(vars["code"], departure)
	if err != nil {
		s.fail(w, op, err)
		return
	}

	writeJSON(w, http.StatusOK, table)
}

type routesResponse struct {
	State       string                  `json:"state"`
	Message     string                  `json:"message,omitempty"`
	Summaries   []timetable.Summary     `json:"summaries"`
	Itineraries []model.MergedItinerary `json:"itineraries"`
}

// Runs one search through a throwaway booking session, so the
// parameters get the same validation as interactive use.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	const op = "api.Server.handleRoutes"

	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()

	session := timetable.NewSession(s.log, s.directory, s.searcher, model.BookingSession{})
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		s.fail(w, op, err)
		return
	}

	q := r.URL.Query()
	for _, set := range []func() error{
		func() error { return session.SetFrom(q.Get("start")) },
		func() error { return session.SetTo(q.Get("end")) },
		func() error { return session.SetDate(q.Get("date")) },
	} {
		if err := set(); err != nil {
			s.fail(w, op, err)
			return
		}
	}

	if err := session.Search(ctx); err != nil {
		if msg := session.Message(); msg != "" && statusFor(err) == http.StatusBadRequest {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		s.fail(w, op, err)
		return
	}

	snapshot := session.Snapshot()
	writeJSON(w, http.StatusOK, routesResponse{
		State:       session.State().String(),
		Message:     session.Message(),
		Summaries:   session.Summaries(),
		Itineraries: snapshot.Results,
	})
}
