package timetable

import (
	"errors"

	"warpcorp.dev/timetable/clock"
)

// All failures are terminal for the operation that triggered them.
// Nothing is retried automatically. Use errors.Is to classify.
var (
	// A line with no districts has no schedule.
	ErrInvalidLine = errors.New("invalid line")

	// Malformed time of day, or arithmetic past the service day.
	ErrInvalidTime = clock.ErrInvalidTime

	// Search attempted with an incomplete origin, destination and
	// date triple.
	ErrValidation = errors.New("please select origin, destination, and date")

	// A collaborator could not be reached or answered with a
	// non-success status.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// A collaborator answered with data that can't be rendered.
	ErrMalformedResponse = errors.New("malformed collaborator response")

	ErrUnknownLine         = errors.New("unknown line")
	ErrUnknownDistrict     = errors.New("unknown district")
	ErrDistrictUnavailable = errors.New("district unavailable")
	ErrUnknownSchedule     = errors.New("unknown schedule")

	// Returned for a search response that was overtaken by a newer
	// request or a parameter change.
	ErrSuperseded = errors.New("search superseded")

	ErrSessionClosed = errors.New("session closed")

	ErrNoActiveFeed = errors.New("no active feed found")
)
