package matcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  g1   -  door 01 ", "G1 - DOOR 01"},
		{"gate\t7\u2013door\u22122", "GATE 7-DOOR-2"},
		{"\u2010\u2011\u2012\u2014\u2015", "-----"},
		{"", ""},
		{" \n ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"G1-1", []string{"001", "01", "1", "G1", "G1 - 1", "G1-1"}},
		{"G1 - DOOR 01", []string{
			"001", "01", "1", "DOOR 001", "DOOR 01", "DOOR 1", "DOOR001", "DOOR01", "DOOR1",
			"G1", "G1 - DOOR 01", "G1-DOOR 01", "G1-DOOR01",
		}},
		{"gate 7 \u2013 door 2", []string{
			"002", "02", "2", "DOOR 002", "DOOR 02", "DOOR 2", "DOOR002", "DOOR02", "DOOR2",
			"GATE 7", "GATE 7 - DOOR 2", "GATE 7-DOOR 2", "GATE7", "GATE7-DOOR2",
		}},
		{"DOOR 3", []string{"003", "03", "3", "DOOR 003", "DOOR 03", "DOOR 3", "DOOR003", "DOOR03", "DOOR3"}},
		{"  d1 ", []string{"D1"}},
		{"A-B-C", []string{"A", "A - B - C", "A-B-C", "B", "C"}},
		{"Door007", []string{"007", "07", "7", "DOOR 007", "DOOR 07", "DOOR 7", "DOOR007", "DOOR07", "DOOR7"}},
		{"", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Candidates(tt.in)); diff != "" {
			t.Errorf("Candidates(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestGateHints(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"G1-1", []string{"G1"}},
		{"G1 - DOOR 01", []string{"G1"}},
		{"gate 7 \u2013 door 2", []string{"7", "G7", "GATE 7", "GATE7"}},
		{"GATE A1B DOOR 4", []string{"A1B", "GA1B", "GATE A1B", "GATEA1B"}},
		{"G12-DOOR1", []string{"G12"}},
		{"  d1 ", []string{"D1"}},
		{"DOOR 3", []string{}},
		{"Door007", []string{}},
		{"A-B-C", []string{}},
		{"", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, GateHints(tt.in)); diff != "" {
			t.Errorf("GateHints(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
