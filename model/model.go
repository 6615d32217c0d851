package model

import (
	"net/url"
	"strconv"

	"warpcorp.dev/timetable/clock"
)

// Holds all external facing types and constants.

const ReverseSuffix = "-rev"

type District struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// A Line serves its districts in the given order. The opposite
// direction is a distinct Line, coded <code>-rev.
type Line struct {
	ID        string   `json:"id"`
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Districts []string `json:"districts"`
}

func ReverseCode(code string) string {
	return code + ReverseSuffix
}

// Builds the opposite direction of the line.
func (l Line) Reverse() Line {
	districts := make([]string, len(l.Districts))
	for i, d := range l.Districts {
		districts[len(l.Districts)-1-i] = d
	}
	return Line{
		ID:        l.ID,
		Code:      ReverseCode(l.Code),
		Name:      l.Name + " (return)",
		Districts: districts,
	}
}

// Base departure times of a line, in display order.
type ScheduleDefinition struct {
	LineCode           string            `json:"lineCode"`
	BaseDepartureTimes []clock.TimeOfDay `json:"baseDepartureTimes"`
}

// A stop on a generated timetable or itinerary segment. Departure is
// nil at the last stop.
type Stop struct {
	District  string           `json:"district"`
	Arrival   clock.TimeOfDay  `json:"arrival"`
	Departure *clock.TimeOfDay `json:"departure"`
}

type GeneratedTimetable struct {
	LineCode      string          `json:"lineCode"`
	BaseDeparture clock.TimeOfDay `json:"baseDeparture"`
	Stops         []Stop          `json:"stops"`
}

// One line's contribution to an itinerary.
type Segment struct {
	Line  string `json:"line"`
	Stops []Stop `json:"stops"`
}

type Money float64

func (m Money) String() string {
	return "$" + strconv.FormatFloat(float64(m), 'f', -1, 64)
}

type Prices struct {
	Economy    Money `json:"economy"`
	FirstClass Money `json:"firstClass"`
}

type ScheduleID int

type ItinerarySchedule struct {
	ID       ScheduleID `json:"id"`
	Segments []Segment  `json:"segments"`
}

// A complete journey as returned by the route search service.
type MergedItinerary struct {
	Route         []string            `json:"route"`
	StationsCount int                 `json:"stationsCount"`
	Transfers     []string            `json:"transfers"`
	Prices        Prices              `json:"prices"`
	Schedules     []ItinerarySchedule `json:"schedules"`
}

// Client-side state of one booking search.
type BookingSession struct {
	From               string            `json:"from"`
	To                 string            `json:"to"`
	Date               string            `json:"date"`
	Results            []MergedItinerary `json:"results"`
	ExpandedScheduleID *ScheduleID       `json:"expandedScheduleId"`
}

// Complete reports whether origin, destination and date are all set.
func (b BookingSession) Complete() bool {
	return b.From != "" && b.To != "" && b.Date != ""
}

// Hand-off to the purchase flow.
type PurchaseIntent struct {
	Start      string     `json:"start"`
	End        string     `json:"end"`
	Date       string     `json:"date"`
	ScheduleID ScheduleID `json:"scheduleId"`
}

// Query parameters understood by the purchase flow.
func (p PurchaseIntent) Query() url.Values {
	q := url.Values{}
	q.Set("start", p.Start)
	q.Set("end", p.End)
	q.Set("date", p.Date)
	q.Set("scheduleId", strconv.Itoa(int(p.ScheduleID)))
	return q
}

type User struct {
	Username string `json:"username"`
}
