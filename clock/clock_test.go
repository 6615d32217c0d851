package clock

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out TimeOfDay
		err bool
	}{
		{"08:00", 8 * 3600, false},
		{"08:00:10", 8*3600 + 10, false},
		{"00:00", 0, false},
		{"23:59:59", 86399, false},
		{"25:00:01", 25*3600 + 1, false},
		{" 9:05 ", 9*3600 + 5*60, false},
		{"", 0, true},
		{"08", 0, true},
		{"08:00:00:00", 0, true},
		{"08:60", 0, true},
		{"08:00:60", 0, true},
		{"-1:00", 0, true},
		{"ab:00", 0, true},
		{"100:00", 0, true},
		{"08::00", 0, true},
		{"+8:00", 0, true},
		{"08:+5", 0, true},
		{"-0:00", 0, true},
		{"08:00:-1", 0, true},
		{"0x:00", 0, true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if tc.err {
				assert.ErrorIs(t, err, ErrInvalidTime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.out, got)
		})
	}
}

func TestAddSeconds(t *testing.T) {
	for _, tc := range []struct {
		in    string
		delta int
		out   string
	}{
		{"08:20:10", 10, "08:20:20"},
		{"08:00", 10, "08:00:10"},
		{"08:00:10", 20 * 60, "08:20:10"},
		{"08:59:50", 10, "09:00"},
		{"08:00:10", -10, "08:00"},
		{"23:59:50", 10, "24:00"},
		{"23:50:00", 20 * 60, "24:10"},
	} {
		got, err := AddSeconds(tc.in, tc.delta)
		require.NoError(t, err)
		assert.Equal(t, tc.out, got, "%s%+d", tc.in, tc.delta)
	}

	_, err := AddSeconds("nope", 10)
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = AddSeconds("00:00:05", -10)
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = AddSeconds("99:59:59", 1)
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestRollover(t *testing.T) {
	late := MustParse("23:50")
	next, err := late.Add(20*60 + 10)
	require.NoError(t, err)

	assert.Equal(t, "24:10:10", next.String())
	assert.Equal(t, 1, next.Day())
	assert.Equal(t, "00:10:10 +1", next.Wall())

	assert.Equal(t, 0, late.Day())
	assert.Equal(t, "23:50", late.Wall())
	assert.Equal(t, 20*60+10, late.Until(next))
}

func TestTextRoundTrip(t *testing.T) {
	var payload struct {
		At    TimeOfDay  `json:"at"`
		Maybe *TimeOfDay `json:"maybe"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"at":"08:20:10","maybe":null}`), &payload))
	assert.Equal(t, MustParse("08:20:10"), payload.At)
	assert.Nil(t, payload.Maybe)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"08:20:10","maybe":null}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"at":"8 o'clock"}`), &payload))
}
