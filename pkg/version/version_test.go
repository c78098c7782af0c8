package version

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"1.0.0", Version{1, 0, 0}},
		{"1.2.3", Version{1, 2, 3}},
		{"10.0.23", Version{10, 0, 23}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if v != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, v, tt.want)
			}
			if v.String() != tt.input {
				t.Errorf("String() = %q, want %q", v.String(), tt.input)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"1",
		"1.0",
		"1.0.0.0",
		"1.x.0",
		"-1.0.0",
		"1..0",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestCurrent(t *testing.T) {
	if got := Current().String(); got != Number {
		t.Errorf("Current() = %q, want %q", got, Number)
	}
}

func TestCompatible(t *testing.T) {
	v1 := Version{1, 0, 0}
	if !v1.Compatible(Version{1, 4, 2}) {
		t.Error("1.0.0 should be compatible with 1.4.2")
	}
	if v1.Compatible(Version{2, 0, 0}) {
		t.Error("1.0.0 should not be compatible with 2.0.0")
	}
}

func TestString(t *testing.T) {
	if got := String(); got != "SAPI: 1.0.0" {
		t.Errorf("String() = %q", got)
	}
}

func TestBanner(t *testing.T) {
	var buf bytes.Buffer
	Banner(slog.New(slog.NewTextHandler(&buf, nil)), []string{"temp", "light"})

	out := buf.String()
	if !strings.Contains(out, "SAPI: 1.0.0") {
		t.Errorf("banner missing version: %s", out)
	}
	if !strings.Contains(out, "temp") {
		t.Errorf("banner missing sensors: %s", out)
	}

	// nil logger is a no-op.
	Banner(nil, nil)
}
