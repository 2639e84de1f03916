package model

import "testing"

func TestParseReplaceMode(t *testing.T) {
	tests := map[string]struct {
		input   string
		want    ReplaceMode
		wantErr bool
	}{
		"empty is append": {input: "", want: ReplaceAppend},
		"append":          {input: "append", want: ReplaceAppend},
		"replace all":     {input: "REPLACEALL", want: ReplaceAll},
		"replace by name": {input: "replaceByName", want: ReplaceByName},
		"unknown":         {input: "merge", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseReplaceMode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseReplaceMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !got.IsValid() {
				t.Errorf("%v should be valid", got)
			}
		})
	}
}

func TestNameSet(t *testing.T) {
	set := NewNameSet("Beam-01", " column ", "")

	for _, name := range []string{"beam-01", "BEAM-01", "Column", "column "} {
		if !set.Contains(name) {
			t.Errorf("expected %q in set", name)
		}
	}
	if set.Contains("") {
		t.Error("blank names should not be in the set")
	}
	if set.Contains("slab") {
		t.Error("slab should not be in the set")
	}
}
