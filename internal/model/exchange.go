package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingExchangeID is returned when an identifier has no exchange id.
	ErrMissingExchangeID = errors.New("exchange id is required")
	// ErrMissingCollectionID is returned when an identifier has no collection id.
	ErrMissingCollectionID = errors.New("collection id is required")
)

// Exchange is the metadata record of a remote data container, as produced
// by the exchange selection step. Only the identifying triple is ever sent
// back to the collaborator; the remaining fields are display-only.
//
// Exchange is a value type and has no setters: it is constructed once by
// ParseExchange (or a literal) and not modified afterwards.
type Exchange struct {
	ExchangeID   string `json:"exchangeId" yaml:"exchangeId"`
	CollectionID string `json:"collectionId" yaml:"collectionId"`
	HubID        string `json:"hubId" yaml:"hubId"`
	Title        string `json:"title" yaml:"title"`
	ProjectName  string `json:"projectName" yaml:"projectName"`
	ProjectURN   string `json:"projectUrn" yaml:"projectUrn"`
	FolderURN    string `json:"folderUrn" yaml:"folderUrn"`
	FileURN      string `json:"fileUrn" yaml:"fileUrn"`
	URL          string `json:"url" yaml:"url"`
	CreatedTime  string `json:"createdTime" yaml:"createdTime"`
	UpdatedTime  string `json:"updatedTime" yaml:"updatedTime"`
	CreatedBy    string `json:"createdBy" yaml:"createdBy"`
	UpdatedBy    string `json:"updatedBy" yaml:"updatedBy"`
}

// exchangeJSON mirrors Exchange with nullable fields so that explicit
// nulls and non-string scalars in the selection payload are tolerated.
type exchangeJSON struct {
	ExchangeID   *jsonText `json:"exchangeId"`
	CollectionID *jsonText `json:"collectionId"`
	HubID        *jsonText `json:"hubId"`
	Title        *jsonText `json:"title"`
	ProjectName  *jsonText `json:"projectName"`
	ProjectURN   *jsonText `json:"projectUrn"`
	FolderURN    *jsonText `json:"folderUrn"`
	FileURN      *jsonText `json:"fileUrn"`
	URL          *jsonText `json:"url"`
	CreatedTime  *jsonText `json:"createdTime"`
	UpdatedTime  *jsonText `json:"updatedTime"`
	CreatedBy    *jsonText `json:"createdBy"`
	UpdatedBy    *jsonText `json:"updatedBy"`
}

// jsonText accepts a JSON string, number, bool or null and keeps its text.
type jsonText string

func (t *jsonText) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*t = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = jsonText(s)
		return nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return fmt.Errorf("expected a scalar, got %s", raw)
	}
	*t = jsonText(raw)
	return nil
}

func (t *jsonText) text() string {
	if t == nil {
		return ""
	}
	return string(*t)
}

// ParseExchange parses an exchange selection JSON object. Missing or null
// fields become empty strings; every other value is kept as given.
func ParseExchange(data []byte) (Exchange, error) {
	var raw exchangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Exchange{}, fmt.Errorf("failed to parse exchange JSON: %w", err)
	}

	return Exchange{
		ExchangeID:   raw.ExchangeID.text(),
		CollectionID: raw.CollectionID.text(),
		HubID:        raw.HubID.text(),
		Title:        raw.Title.text(),
		ProjectName:  raw.ProjectName.text(),
		ProjectURN:   raw.ProjectURN.text(),
		FolderURN:    raw.FolderURN.text(),
		FileURN:      raw.FileURN.text(),
		URL:          raw.URL.text(),
		CreatedTime:  raw.CreatedTime.text(),
		UpdatedTime:  raw.UpdatedTime.text(),
		CreatedBy:    raw.CreatedBy.text(),
		UpdatedBy:    raw.UpdatedBy.text(),
	}, nil
}

// JSON serializes every field, using empty strings for absent values.
func (e Exchange) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Identifier returns the identifying triple of the exchange with
// surrounding whitespace removed.
func (e Exchange) Identifier() Identifier {
	return Identifier{
		ExchangeID:   strings.TrimSpace(e.ExchangeID),
		CollectionID: strings.TrimSpace(e.CollectionID),
		HubID:        strings.TrimSpace(e.HubID),
	}
}

// DisplayTitle returns the title, falling back to the exchange id.
func (e Exchange) DisplayTitle() string {
	if t := strings.TrimSpace(e.Title); t != "" {
		return t
	}
	return e.ExchangeID
}

// Identifier is the triple the collaborator uses to address an exchange.
type Identifier struct {
	ExchangeID   string `json:"exchangeId" yaml:"exchangeId"`
	CollectionID string `json:"collectionId" yaml:"collectionId"`
	HubID        string `json:"hubId,omitempty" yaml:"hubId,omitempty"`
}

// Validate checks that exchange and collection ids are present.
func (id Identifier) Validate() error {
	if strings.TrimSpace(id.ExchangeID) == "" {
		return ErrMissingExchangeID
	}
	if strings.TrimSpace(id.CollectionID) == "" {
		return ErrMissingCollectionID
	}
	return nil
}

// HasHub reports whether a hub id is part of the identifier.
func (id Identifier) HasHub() bool {
	return id.HubID != ""
}

// String renders collection/exchange, with @hub appended when present.
func (id Identifier) String() string {
	s := id.CollectionID + "/" + id.ExchangeID
	if id.HasHub() {
		s += "@" + id.HubID
	}
	return s
}

// ParseIdentifier parses the collection/exchange[@hub] form produced by
// Identifier.String.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	var id Identifier
	if at := strings.LastIndex(s, "@"); at >= 0 {
		id.HubID = strings.TrimSpace(s[at+1:])
		s = s[:at]
	}
	col, ex, ok := strings.Cut(s, "/")
	if !ok {
		return Identifier{}, fmt.Errorf("invalid exchange identifier %q (want collection/exchange[@hub])", s)
	}
	id.CollectionID = strings.TrimSpace(col)
	id.ExchangeID = strings.TrimSpace(ex)
	if err := id.Validate(); err != nil {
		return Identifier{}, err
	}
	return id, nil
}
