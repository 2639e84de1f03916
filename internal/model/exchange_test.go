package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseExchange_RoundTrip(t *testing.T) {
	tests := map[string]struct {
		input  string
		wantID Identifier
	}{
		"full record": {
			input: `{
				"exchangeId": "a1b2c3d4e5f6",
				"collectionId": "co.xyz",
				"hubId": "b.hub",
				"title": "Level 2 Framing",
				"projectName": "Tower",
				"projectUrn": "urn:adsk.workspace:prod.project:1",
				"folderUrn": "urn:adsk.wipprod:fs.folder:2",
				"fileUrn": "urn:adsk.wipprod:fs.file:3",
				"url": "https://acc.example/exchange/1",
				"createdTime": "2024-01-02T03:04:05Z",
				"updatedTime": "2024-02-03T04:05:06Z",
				"createdBy": "alex",
				"updatedBy": "sam"
			}`,
			wantID: Identifier{ExchangeID: "a1b2c3d4e5f6", CollectionID: "co.xyz", HubID: "b.hub"},
		},
		"padded ids kept verbatim": {
			input:  `{"exchangeId":" ex-1 ","collectionId":"col-1 ","hubId":" hub","title":" Roof "}`,
			wantID: Identifier{ExchangeID: "ex-1", CollectionID: "col-1", HubID: "hub"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ex, err := ParseExchange([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseExchange failed: %v", err)
			}

			out, err := ex.JSON()
			if err != nil {
				t.Fatalf("JSON failed: %v", err)
			}

			var want, got map[string]any
			if err := json.Unmarshal([]byte(tt.input), &want); err != nil {
				t.Fatal(err)
			}
			if err := json.Unmarshal(out, &got); err != nil {
				t.Fatal(err)
			}
			for k, v := range want {
				if got[k] != v {
					t.Errorf("field %s: got %q, want %q", k, got[k], v)
				}
			}

			if id := ex.Identifier(); id != tt.wantID {
				t.Errorf("Identifier() = %+v, want %+v", id, tt.wantID)
			}
		})
	}
}

func TestParseExchange_MissingFieldsBecomeEmpty(t *testing.T) {
	ex, err := ParseExchange([]byte(`{"exchangeId": "ex-1", "collectionId": "col-1", "title": null}`))
	if err != nil {
		t.Fatalf("ParseExchange failed: %v", err)
	}

	out, err := ex.JSON()
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"hubId", "title", "projectName", "projectUrn", "folderUrn", "fileUrn", "url", "createdTime", "updatedTime", "createdBy", "updatedBy"} {
		v, ok := got[key]
		if !ok {
			t.Errorf("field %s missing from output", key)
			continue
		}
		if v != "" {
			t.Errorf("field %s: got %v, want empty string", key, v)
		}
	}
}

func TestParseExchange_ScalarCoercion(t *testing.T) {
	ex, err := ParseExchange([]byte(`{"exchangeId": 12345, "collectionId": "col", "title": true}`))
	if err != nil {
		t.Fatalf("ParseExchange failed: %v", err)
	}
	if ex.ExchangeID != "12345" {
		t.Errorf("ExchangeID = %q, want 12345", ex.ExchangeID)
	}
	if ex.Title != "true" {
		t.Errorf("Title = %q, want true", ex.Title)
	}
}

func TestParseExchange_Invalid(t *testing.T) {
	tests := map[string]string{
		"malformed":    `{"exchangeId": `,
		"not object":   `[1,2,3]`,
		"nested value": `{"exchangeId": {"id": "x"}}`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseExchange([]byte(input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIdentifier_Validate(t *testing.T) {
	tests := map[string]struct {
		id      Identifier
		wantErr error
	}{
		"valid without hub": {
			id: Identifier{ExchangeID: "ex", CollectionID: "col"},
		},
		"valid with hub": {
			id: Identifier{ExchangeID: "ex", CollectionID: "col", HubID: "hub"},
		},
		"missing exchange": {
			id:      Identifier{CollectionID: "col"},
			wantErr: ErrMissingExchangeID,
		},
		"blank exchange": {
			id:      Identifier{ExchangeID: "  ", CollectionID: "col"},
			wantErr: ErrMissingExchangeID,
		},
		"missing collection": {
			id:      Identifier{ExchangeID: "ex"},
			wantErr: ErrMissingCollectionID,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.id.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIdentifier_String(t *testing.T) {
	ex := Exchange{ExchangeID: "ex", CollectionID: "col"}
	if got := ex.Identifier().String(); got != "col/ex" {
		t.Errorf("String() = %q", got)
	}

	ex.HubID = "hub"
	if got := ex.Identifier().String(); got != "col/ex@hub" {
		t.Errorf("String() = %q", got)
	}

	data, err := json.Marshal(Exchange{ExchangeID: "ex", CollectionID: "col"}.Identifier())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"exchangeId":"ex","collectionId":"col"}` {
		t.Errorf("hub id should be omitted when absent, got %s", data)
	}
}

func TestExchange_DisplayTitle(t *testing.T) {
	if got := (Exchange{ExchangeID: "ex", Title: "  "}).DisplayTitle(); got != "ex" {
		t.Errorf("DisplayTitle() = %q, want ex", got)
	}
	if got := (Exchange{ExchangeID: "ex", Title: "Roof"}).DisplayTitle(); got != "Roof" {
		t.Errorf("DisplayTitle() = %q, want Roof", got)
	}
}

func TestParseIdentifier(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    Identifier
		wantErr error
	}{
		"without hub":   {in: "co.xyz/a1b2", want: Identifier{CollectionID: "co.xyz", ExchangeID: "a1b2"}},
		"with hub":      {in: "co.xyz/a1b2@b.hub", want: Identifier{CollectionID: "co.xyz", ExchangeID: "a1b2", HubID: "b.hub"}},
		"spaces":        {in: " co.xyz / a1b2 ", want: Identifier{CollectionID: "co.xyz", ExchangeID: "a1b2"}},
		"no exchange":   {in: "co.xyz/", wantErr: ErrMissingExchangeID},
		"no collection": {in: "/a1b2", wantErr: ErrMissingCollectionID},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseIdentifier(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if again, _ := ParseIdentifier(got.String()); again != got {
				t.Errorf("String() does not parse back: %q", got.String())
			}
		})
	}

	if _, err := ParseIdentifier("no-slash"); err == nil {
		t.Error("expected error for missing separator")
	}
}
