package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"warpcorp.dev/timetable"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Maps domain errors to response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, timetable.ErrInvalidTime),
		errors.Is(err, timetable.ErrValidation),
		errors.Is(err, timetable.ErrUnknownDistrict),
		errors.Is(err, timetable.ErrDistrictUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, timetable.ErrUnknownLine),
		errors.Is(err, timetable.ErrUnknownSchedule):
		return http.StatusNotFound
	case errors.Is(err, timetable.ErrCollaboratorUnavailable),
		errors.Is(err, timetable.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, timetable.ErrNoActiveFeed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
