package timetable

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"warpcorp.dev/timetable/model"
)

const (
	MessageIncomplete = "Please select origin, destination, and date."
	MessageNoRoutes   = "No routes found for the selected districts."

	// Format of BookingSession.Date.
	DateLayout = "2006-01-02"
)

// Provides the districts a session can choose from.
type DistrictDirectory interface {
	Districts(ctx context.Context) ([]model.District, error)
}

// Finds itineraries between two districts on a date.
type RouteSearcher interface {
	FindRoutes(ctx context.Context, start, end, date string) ([]model.MergedItinerary, error)
}

type State int

const (
	Idle State = iota
	DistrictsLoading
	DistrictsReady
	DistrictsError
	ParamsIncomplete
	Searching
	ResultsReady
	ResultsEmpty
	ResultsError
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case DistrictsLoading:
		return "DistrictsLoading"
	case DistrictsReady:
		return "DistrictsReady"
	case DistrictsError:
		return "DistrictsError"
	case ParamsIncomplete:
		return "ParamsIncomplete"
	case Searching:
		return "Searching"
	case ResultsReady:
		return "ResultsReady"
	case ResultsEmpty:
		return "ResultsEmpty"
	case ResultsError:
		return "ResultsError"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// An entry in a district selector.
type DistrictOption struct {
	model.District
	Disabled bool `json:"disabled"`
}

// DeriveInitialSession restores a session from deep link parameters
// start, end and date. Only a complete triple with distinct districts
// is kept. Anything less yields an empty session.
func DeriveInitialSession(params url.Values) model.BookingSession {
	session := model.BookingSession{
		From: params.Get("start"),
		To:   params.Get("end"),
		Date: params.Get("date"),
	}
	if !session.Complete() || session.From == session.To {
		return model.BookingSession{}
	}
	return session
}

// A search issued by BeginSearch. Seq identifies it when the response
// comes back.
type SearchRequest struct {
	Seq   uint64
	Start string
	End   string
	Date  string
}

type SessionOption func(*Session)

// Attaches the signed in user.
func WithUser(user model.User) SessionOption {
	return func(s *Session) {
		s.user = &user
	}
}

// Session is the booking state machine of one user. Collaborators are
// called without holding the lock, so several searches may be in
// flight. Only the most recently issued one is applied.
type Session struct {
	log       *zap.Logger
	directory DistrictDirectory
	searcher  RouteSearcher
	user      *model.User
	initial   model.BookingSession

	mutex     sync.Mutex
	state     State
	districts map[string]model.District
	ordered   []model.District
	booking   model.BookingSession
	presenter *Presenter
	err       error
	message   string
	seq       uint64
	closed    bool
}

func NewSession(
	log *zap.Logger,
	directory DistrictDirectory,
	searcher RouteSearcher,
	initial model.BookingSession,
	opts ...SessionOption,
) *Session {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{
		log:       log,
		directory: directory,
		searcher:  searcher,
		initial:   initial,
		state:     Idle,
		districts: map[string]model.District{},
		booking: model.BookingSession{
			From: initial.From,
			To:   initial.To,
			Date: initial.Date,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the districts, then searches right away if the session
// was created from a complete deep link.
func (s *Session) Start(ctx context.Context) error {
	const op = "timetable.Session.Start"
	log := s.log.With(zap.String("op", op))

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return ErrSessionClosed
	}
	s.state = DistrictsLoading
	s.err = nil
	s.message = ""
	s.mutex.Unlock()

	districts, err := s.directory.Districts(ctx)

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return ErrSessionClosed
	}
	if err != nil {
		s.state = DistrictsError
		s.err = collaboratorError(err)
		s.message = err.Error()
		s.mutex.Unlock()

		log.Warn("loading districts failed", zap.Error(err))
		return s.err
	}

	s.districts = map[string]model.District{}
	s.ordered = make([]model.District, 0, len(districts))
	for _, d := range districts {
		s.districts[d.Code] = d
		s.ordered = append(s.ordered, d)
	}
	s.state = DistrictsReady
	autoSearch := s.initial.Complete() && s.booking.Complete()
	if autoSearch {
		if err := s.checkBooking(); err != nil {
			log.Warn("ignoring invalid deep link", zap.Error(err))
			s.booking.From, s.booking.To, s.booking.Date = "", "", ""
			autoSearch = false
		}
	}
	if !autoSearch {
		s.state = ParamsIncomplete
	}
	s.mutex.Unlock()

	log.Info("districts loaded", zap.Int("districts", len(districts)), zap.Bool("auto_search", autoSearch))

	if autoSearch {
		return s.Search(ctx)
	}
	return nil
}

// Applies the checks of SetFrom, SetTo and SetDate to parameters
// restored from a deep link. Must hold the lock.
func (s *Session) checkBooking() error {
	for _, code := range []string{s.booking.From, s.booking.To} {
		if _, found := s.districts[code]; !found {
			return fmt.Errorf("%w: %s", ErrUnknownDistrict, code)
		}
	}
	if s.booking.From == s.booking.To {
		return fmt.Errorf("%w: %s is already selected", ErrDistrictUnavailable, s.booking.To)
	}
	if _, err := time.Parse(DateLayout, s.booking.Date); err != nil {
		return fmt.Errorf("%w: bad date '%s'", ErrValidation, s.booking.Date)
	}
	return nil
}

// Whether the district selectors can be used.
func (s *Session) SelectorsEnabled() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.districtsLoaded()
}

func (s *Session) districtsLoaded() bool {
	switch s.state {
	case Idle, DistrictsLoading, DistrictsError:
		return false
	}
	return !s.closed
}

// Origin choices. The current destination is disabled.
func (s *Session) FromOptions() []DistrictOption {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.options(s.booking.To)
}

// Destination choices. The current origin is disabled.
func (s *Session) ToOptions() []DistrictOption {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.options(s.booking.From)
}

func (s *Session) options(disabled string) []DistrictOption {
	options := []DistrictOption{}
	if !s.districtsLoaded() {
		return options
	}
	for _, d := range s.ordered {
		options = append(options, DistrictOption{
			District: d,
			Disabled: disabled != "" && d.Code == disabled,
		})
	}
	return options
}

func (s *Session) SetFrom(code string) error {
	return s.setDistrict(code, &s.booking.From, &s.booking.To)
}

func (s *Session) SetTo(code string) error {
	return s.setDistrict(code, &s.booking.To, &s.booking.From)
}

func (s *Session) setDistrict(code string, field *string, other *string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	if code != "" {
		if !s.districtsLoaded() {
			return fmt.Errorf("%w: districts not loaded", ErrDistrictUnavailable)
		}
		if _, found := s.districts[code]; !found {
			return fmt.Errorf("%w: %s", ErrUnknownDistrict, code)
		}
		if code == *other {
			return fmt.Errorf("%w: %s is already selected", ErrDistrictUnavailable, code)
		}
	}

	*field = code
	s.paramsChanged()
	return nil
}

// SetDate takes a YYYY-MM-DD date, or "" to clear it.
func (s *Session) SetDate(date string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if date != "" {
		if _, err := time.Parse(DateLayout, date); err != nil {
			return fmt.Errorf("%w: bad date '%s'", ErrValidation, date)
		}
	}

	s.booking.Date = date
	s.paramsChanged()
	return nil
}

// Must hold the lock.
func (s *Session) paramsChanged() {
	s.clearResults()
	if s.districtsLoaded() {
		s.state = ParamsIncomplete
	}
}

// Drops results and expansion, and invalidates searches in flight.
// Must hold the lock.
func (s *Session) clearResults() {
	s.booking.Results = nil
	s.booking.ExpandedScheduleID = nil
	s.presenter = nil
	s.err = nil
	s.message = ""
	s.seq++
}

// Search runs a single route search for the current parameters. No
// network call is made when they are incomplete.
func (s *Session) Search(ctx context.Context) error {
	req, err := s.BeginSearch()
	if err != nil {
		return err
	}

	its, err := s.searcher.FindRoutes(ctx, req.Start, req.End, req.Date)

	return s.CompleteSearch(req, its, err)
}

// BeginSearch validates the parameters, clears previous results and
// issues a new sequence number.
func (s *Session) BeginSearch() (SearchRequest, error) {
	const op = "timetable.Session.BeginSearch"

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return SearchRequest{}, ErrSessionClosed
	}

	s.clearResults()

	if !s.booking.Complete() {
		s.state = ParamsIncomplete
		s.err = ErrValidation
		s.message = MessageIncomplete
		return SearchRequest{}, ErrValidation
	}

	s.state = Searching

	req := SearchRequest{
		Seq:   s.seq,
		Start: s.booking.From,
		End:   s.booking.To,
		Date:  s.booking.Date,
	}

	s.log.Debug("search issued",
		zap.String("op", op),
		zap.Uint64("seq", req.Seq),
		zap.String("start", req.Start),
		zap.String("end", req.End),
		zap.String("date", req.Date),
	)

	return req, nil
}

// CompleteSearch applies the response to req. Responses to anything
// but the latest request are discarded with ErrSuperseded.
func (s *Session) CompleteSearch(req SearchRequest, its []model.MergedItinerary, searchErr error) error {
	const op = "timetable.Session.CompleteSearch"
	log := s.log.With(zap.String("op", op), zap.Uint64("seq", req.Seq))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if req.Seq != s.seq {
		log.Debug("discarding stale search response", zap.Uint64("latest", s.seq))
		return ErrSuperseded
	}

	if searchErr != nil {
		s.state = ResultsError
		s.err = collaboratorError(searchErr)
		s.message = searchErr.Error()
		log.Warn("route search failed", zap.Error(searchErr))
		return s.err
	}

	presenter, err := NewPresenter(its)
	if err != nil {
		s.state = ResultsError
		s.err = err
		s.message = err.Error()
		log.Warn("rejected route search response", zap.Error(err))
		return err
	}

	s.presenter = presenter
	s.booking.Results = its
	if len(its) == 0 {
		s.state = ResultsEmpty
		s.booking.Results = []model.MergedItinerary{}
		s.message = MessageNoRoutes
	} else {
		s.state = ResultsReady
	}

	log.Info("search completed", zap.Stringer("state", s.state), zap.Int("itineraries", len(its)))

	return nil
}

// Collaborator failures that aren't already classified are reported
// as unavailability, keeping the original message.
func collaboratorError(err error) error {
	if errors.Is(err, ErrCollaboratorUnavailable) || errors.Is(err, ErrMalformedResponse) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
}

// ToggleExpansion expands or collapses one schedule of the current
// results.
func (s *Session) ToggleExpansion(id model.ScheduleID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state != ResultsReady || !s.hasSchedule(id) {
		return fmt.Errorf("%w: %d", ErrUnknownSchedule, id)
	}

	s.presenter.Toggle(id)
	s.booking.ExpandedScheduleID = s.presenter.Expanded()
	return nil
}

// Must hold the lock.
func (s *Session) hasSchedule(id model.ScheduleID) bool {
	for _, it := range s.booking.Results {
		for _, sched := range it.Schedules {
			if sched.ID == id {
				return true
			}
		}
	}
	return false
}

// Select hands a schedule of the itinerary at index off to the
// purchase flow. The session is left untouched.
func (s *Session) Select(index int, id model.ScheduleID) (model.PurchaseIntent, error) {
	const op = "timetable.Session.Select"

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return model.PurchaseIntent{}, ErrSessionClosed
	}
	if s.state != ResultsReady || index < 0 || index >= len(s.booking.Results) {
		return model.PurchaseIntent{}, fmt.Errorf("%w: no itinerary %d", ErrUnknownSchedule, index)
	}

	intent, err := SelectSchedule(s.booking.Results[index], id, s.booking.Date)
	if err != nil {
		return model.PurchaseIntent{}, err
	}

	fields := []zap.Field{zap.String("op", op), zap.Int("schedule_id", int(id))}
	if s.user != nil {
		fields = append(fields, zap.String("user", s.user.Username))
	}
	s.log.Info("schedule selected", fields...)

	return intent, nil
}

func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// The error of the last failed operation, if any.
func (s *Session) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// Inline message for the user, or "".
func (s *Session) Message() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.message
}

func (s *Session) User() *model.User {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Expanded reports the expanded schedule of the current results.
func (s *Session) Expanded() *model.ScheduleID {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.presenter == nil {
		return nil
	}
	return s.presenter.Expanded()
}

func (s *Session) Summaries() []Summary {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.presenter == nil {
		return []Summary{}
	}
	return s.presenter.Summaries()
}

// Snapshot returns a copy of the booking state.
func (s *Session) Snapshot() model.BookingSession {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b := s.booking
	if s.booking.Results != nil {
		b.Results = append([]model.MergedItinerary{}, s.booking.Results...)
	}
	if s.booking.ExpandedScheduleID != nil {
		id := *s.booking.ExpandedScheduleID
		b.ExpandedScheduleID = &id
	}
	return b
}

// Close ends the session. Everything afterwards fails with
// ErrSessionClosed.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.clearResults()
	s.booking = model.BookingSession{}
	s.districts = map[string]model.District{}
	s.ordered = nil
	s.user = nil
	s.state = Idle
	s.closed = true
	return nil
}
