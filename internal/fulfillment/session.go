package fulfillment

import (
	"fmt"
	"time"

	"github.com/klauern/dxnodes/internal/model"
)

// Session holds the state of one pipeline invocation: the target exchange,
// the pending asset-to-file mapping and the lifecycle state. A session is
// used by a single coordinator run and is not safe for concurrent use.
type Session struct {
	id            model.Identifier
	fulfillmentID string
	state         State
	history       []Transition

	order    []string
	files    map[string]string
	geometry map[string]int
}

// NewSession creates an idle session for the exchange.
func NewSession(id model.Identifier) *Session {
	return &Session{
		id:       id,
		files:    make(map[string]string),
		geometry: make(map[string]int),
	}
}

// Identifier returns the exchange the session targets.
func (s *Session) Identifier() model.Identifier {
	return s.id
}

// RegisterAsset maps a pending geometry asset to its local file.
// Registering the same id again replaces its mapping.
func (s *Session) RegisterAsset(assetID, path string, geometryCount int) {
	if _, ok := s.files[assetID]; !ok {
		s.order = append(s.order, assetID)
	}
	s.files[assetID] = path
	s.geometry[assetID] = geometryCount
}

// AssetFile returns the local file registered for assetID.
func (s *Session) AssetFile(assetID string) (string, bool) {
	p, ok := s.files[assetID]
	return p, ok
}

// GeometryCount returns the geometry count registered for assetID.
func (s *Session) GeometryCount(assetID string) int {
	return s.geometry[assetID]
}

// AssetIDs returns registered asset ids in registration order.
func (s *Session) AssetIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Paths returns registered local files in registration order.
func (s *Session) Paths() []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.files[id])
	}
	return out
}

// TotalGeometry sums the registered geometry counts.
func (s *Session) TotalGeometry() int {
	total := 0
	for _, n := range s.geometry {
		total += n
	}
	return total
}

// FulfillmentID returns the collaborator-assigned id, empty before start.
func (s *Session) FulfillmentID() string {
	return s.fulfillmentID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// History returns the recorded transitions in order.
func (s *Session) History() []Transition {
	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

// transition moves the session to next.
func (s *Session) transition(next State) error {
	if !canTransition(s.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.history = append(s.history, Transition{From: s.state, To: next, At: time.Now()})
	s.state = next
	return nil
}
