package timefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSGT(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-05T16:30:00Z", "06-Mar-2024 00:30:00 SGT"},
		{"2024-12-31T01:02:03Z", "31-Dec-2024 09:02:03 SGT"},
		{"", ""},
		{"   ", ""},
		{" not-a-time ", "not-a-time"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SGT(tt.in), "SGT(%q)", tt.in)
	}
}

func TestSGTPtr(t *testing.T) {
	assert.Equal(t, "", SGTPtr(nil))
	v := "2024-01-01T00:00:00Z"
	assert.Equal(t, "01-Jan-2024 08:00:00 SGT", SGTPtr(&v))
}

func TestFormatParse(t *testing.T) {
	at := time.Date(2025, 7, 1, 10, 20, 30, 999, time.FixedZone("X", 3600))
	s := Format(at)
	assert.Equal(t, "2025-07-01T09:20:30Z", s)

	got, ok := Parse(s)
	assert.True(t, ok)
	assert.True(t, got.Equal(at.Truncate(time.Second)))

	_, ok = Parse("2025-07-01 09:20:30")
	assert.False(t, ok)
}
