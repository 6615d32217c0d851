package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineReverse(t *testing.T) {
	line := Line{ID: "1", Code: "WARP-CL", Name: "Central", Districts: []string{"1", "2", "3"}}

	rev := line.Reverse()
	assert.Equal(t, "WARP-CL-rev", rev.Code)
	assert.Equal(t, "Central (return)", rev.Name)
	assert.Equal(t, []string{"3", "2", "1"}, rev.Districts)

	// original untouched
	assert.Equal(t, []string{"1", "2", "3"}, line.Districts)
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "$120", Money(120).String())
	assert.Equal(t, "$99.5", Money(99.5).String())
}

func TestPurchaseIntentQuery(t *testing.T) {
	p := PurchaseIntent{Start: "A", End: "C", Date: "2026-01-02", ScheduleID: 7}
	assert.Equal(t, "date=2026-01-02&end=C&scheduleId=7&start=A", p.Query().Encode())
}

func TestBookingSessionComplete(t *testing.T) {
	assert.False(t, BookingSession{}.Complete())
	assert.False(t, BookingSession{From: "A", To: "B"}.Complete())
	assert.True(t, BookingSession{From: "A", To: "B", Date: "2026-01-02"}.Complete())
}
