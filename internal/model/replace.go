package model

import (
	"fmt"
	"strings"
)

// ReplaceMode controls how an upload treats elements already in the exchange.
type ReplaceMode string

const (
	// ReplaceAppend adds new elements without touching existing ones.
	ReplaceAppend ReplaceMode = "append"
	// ReplaceAll removes the entire prior structure before adding.
	ReplaceAll ReplaceMode = "replaceAll"
	// ReplaceByName removes existing elements whose name is in the
	// caller-supplied set (case-insensitive) before adding.
	ReplaceByName ReplaceMode = "replaceByName"
)

// AllReplaceModes returns the supported replace modes.
func AllReplaceModes() []ReplaceMode {
	return []ReplaceMode{ReplaceAppend, ReplaceAll, ReplaceByName}
}

// IsValid returns true if the mode is recognized.
func (m ReplaceMode) IsValid() bool {
	switch m {
	case ReplaceAppend, ReplaceAll, ReplaceByName:
		return true
	default:
		return false
	}
}

// String returns the mode name.
func (m ReplaceMode) String() string {
	return string(m)
}

// ParseReplaceMode parses a mode name case-insensitively. Empty means append.
func ParseReplaceMode(s string) (ReplaceMode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ReplaceAppend, nil
	}
	for _, m := range AllReplaceModes() {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown replace mode %q (valid: append, replaceAll, replaceByName)", s)
}

// NameSet is a case-insensitive set of element names.
type NameSet map[string]struct{}

// NewNameSet builds a set from names, ignoring blanks.
func NewNameSet(names ...string) NameSet {
	set := make(NameSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// Contains reports whether name is in the set, ignoring case.
func (s NameSet) Contains(name string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
