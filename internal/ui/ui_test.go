package ui

import (
	"errors"
	"testing"
)

func TestNumbered(t *testing.T) {
	got := numbered([]string{"The Matrix (1999) [Movie]", "two\nlines"})
	want := "0\tThe Matrix (1999) [Movie]\n1\ttwo lines\n"
	if got != want {
		t.Errorf("numbered = %q, want %q", got, want)
	}
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		out     string
		want    int
		wantErr bool
	}{
		{"1\tSeason 2\n", 1, false},
		{"0\tYes", 0, false},
		{"", -1, true},
		{"7\tout of range", -1, true},
		{"x\tgarbage", -1, true},
	}
	for _, tt := range tests {
		got, err := parseSelection(tt.out, 3)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("parseSelection(%q) = %d, %v", tt.out, got, err)
		}
	}
	if _, err := parseSelection("  ", 3); !errors.Is(err, ErrCancelled) {
		t.Errorf("blank output should be a cancel, got %v", err)
	}
}
