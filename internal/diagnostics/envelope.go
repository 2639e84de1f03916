package diagnostics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"gopkg.in/yaml.v3"

	"github.com/klauern/dxnodes/internal/logging"
)

// Field is one named output of an operation.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for constructing a Field.
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// Envelope is the uniform response of every node operation: a success flag,
// the joined diagnostics, and operation-specific named fields in the order
// they were added.
type Envelope struct {
	Success     bool
	Diagnostics string
	Fields      []Field
	// Err is the failure that produced an unsuccessful envelope. It is not
	// serialized; callers inside the process may inspect it with errors.Is.
	Err error
}

// Succeed builds a successful envelope from the log and fields.
func Succeed(log *Log, fields ...Field) *Envelope {
	return &Envelope{
		Success:     true,
		Diagnostics: joined(log),
		Fields:      fields,
	}
}

// Fail records err in the log and builds a failed envelope.
func Fail(log *Log, err error, fields ...Field) *Envelope {
	if log == nil {
		log = NewDefault()
	}
	if err == nil {
		err = errors.New("operation failed")
	}
	log.Add(Error, err.Error())
	return &Envelope{
		Success:     false,
		Diagnostics: log.Joined(),
		Fields:      fields,
		Err:         err,
	}
}

func joined(log *Log) string {
	if log == nil {
		return ""
	}
	return log.Joined()
}

// Field appends a named field and returns the envelope.
func (e *Envelope) Field(name string, value any) *Envelope {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			e.Fields[i].Value = value
			return e
		}
	}
	e.Fields = append(e.Fields, Field{Name: name, Value: value})
	return e
}

// Get returns the named field value.
func (e *Envelope) Get(name string) (any, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// MarshalJSON flattens fields next to success and diagnostics.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(name string, value any) error {
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		val, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal field %q: %w", name, err)
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	if err := write("success", e.Success); err != nil {
		return nil, err
	}
	if err := write("diagnostics", e.Diagnostics); err != nil {
		return nil, err
	}
	for _, f := range e.Fields {
		if f.Name == "success" || f.Name == "diagnostics" {
			continue
		}
		if err := write(f.Name, f.Value); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML flattens fields next to success and diagnostics, keeping order.
func (e *Envelope) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}

	add := func(name string, value any) error {
		var val yaml.Node
		if err := val.Encode(value); err != nil {
			return fmt.Errorf("failed to encode field %q: %w", name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
			&val,
		)
		return nil
	}

	if err := add("success", e.Success); err != nil {
		return nil, err
	}
	if err := add("diagnostics", e.Diagnostics); err != nil {
		return nil, err
	}
	for _, f := range e.Fields {
		if f.Name == "success" || f.Name == "diagnostics" {
			continue
		}
		if err := add(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Guard runs a node body and converts any returned error or panic into a
// failed envelope. A nil envelope from a successful body becomes a bare
// successful envelope.
func Guard(log *Log, operation string, fn func(log *Log) (*Envelope, error)) (env *Envelope) {
	if log == nil {
		log = NewDefault()
	}
	defer logging.Timer(operation)()

	defer func() {
		if r := recover(); r != nil {
			logging.Error("node operation panicked",
				logging.Operation(operation),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			env = Fail(log, fmt.Errorf("%s: unexpected failure: %v", operation, r))
		}
	}()

	env, err := fn(log)
	if err != nil {
		return Fail(log, fmt.Errorf("%s: %w", operation, err))
	}
	if env == nil {
		env = Succeed(log)
	}
	return env
}
