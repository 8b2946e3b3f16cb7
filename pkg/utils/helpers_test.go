package utils

import "testing"

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"3.5", 3.5, true},
		{" 42 ", 42, true},
		{"-1e3", -1000, true},
		{"", 0, false},
		{"NA", 0, false},
		{"nan", 0, false},
		{"Inf", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("ParseNumber(%q)=(%v,%v), want (%v,%v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{" x ", "x"},
		{2.5, "2.5"},
		{float64(3), "3"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Fatalf("FormatValue(%v)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if ContentType("model.json") != "application/json" || ContentType("train.CSV") != "text/csv" {
		t.Fatalf("unexpected content types")
	}
	if ContentType("blob.bin") != "application/octet-stream" {
		t.Fatalf("unexpected fallback")
	}
}
