package ui

import (
	"testing"
)

func TestStatusFunctions(t *testing.T) {
	DisableColors()
	defer EnableColors()

	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"StatusSuccess empty", StatusSuccess, "", SymbolSuccess},
		{"StatusSuccess with msg", StatusSuccess, "committed", SymbolSuccess + " committed"},
		{"StatusError empty", StatusError, "", SymbolError},
		{"StatusError with msg", StatusError, "discarded", SymbolError + " discarded"},
		{"StatusWarning with msg", StatusWarning, "poll timed out", SymbolWarning + " poll timed out"},
		{"StatusSkipped with msg", StatusSkipped, "skip", SymbolSkipped + " skip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestColorToggle(t *testing.T) {
	initial := IsColorEnabled()

	DisableColors()
	if IsColorEnabled() {
		t.Error("expected colors to be disabled")
	}

	EnableColors()
	if !IsColorEnabled() {
		t.Error("expected colors to be enabled")
	}

	if !initial {
		DisableColors()
	}
}

func TestDiagnosticLine_PlainWithoutColor(t *testing.T) {
	DisableColors()
	defer EnableColors()

	for _, line := range []string{"[Error] boom", "[Warning] careful", "[Debug] detail", "[Info] note"} {
		if got := DiagnosticLine(line); got != line {
			t.Errorf("DiagnosticLine(%q) = %q", line, got)
		}
	}
}

func TestFieldLabel(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"single word":  {in: "paths", want: "Paths"},
		"camel case":   {in: "geometryCount", want: "Geometry Count"},
		"three words":  {in: "stepFilePaths", want: "Step File Paths"},
		"trailing cap": {in: "fulfillmentId", want: "Fulfillment Id"},
		"empty":        {in: "", want: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := FieldLabel(tt.in); got != tt.want {
				t.Errorf("FieldLabel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
