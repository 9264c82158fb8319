// Package modes selects the roles the server binary runs.
// The binary can run in different modes:
//   - all: runs the holder and the verifier (default)
//   - holder: runs only the credential offer endpoints
//   - verifier: runs only the proof request endpoints
//
// Modes may be combined as a comma-separated list.
package modes

import (
	"fmt"
	"strings"
)

// Mode represents an operating mode of the server binary
type Mode string

const (
	ModeAll      Mode = "all"
	ModeHolder   Mode = "holder"
	ModeVerifier Mode = "verifier"
)

// ValidModes lists all valid operating modes
var ValidModes = []Mode{ModeAll, ModeHolder, ModeVerifier}

// IsValid checks if a mode string is valid
func (m Mode) IsValid() bool {
	for _, valid := range ValidModes {
		if m == valid {
			return true
		}
	}
	return false
}

// ParseMode parses a mode string into a Mode, returning an error if invalid
func ParseMode(s string) (Mode, error) {
	mode := Mode(strings.TrimSpace(s))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid mode %q, valid modes: %v", s, ValidModes)
	}
	return mode, nil
}

// Set is the set of roles enabled for a run
type Set struct {
	Holder   bool
	Verifier bool
}

// ParseModes parses a comma-separated mode list. An empty list means all.
func ParseModes(s string) (Set, error) {
	if strings.TrimSpace(s) == "" {
		return Set{Holder: true, Verifier: true}, nil
	}
	var set Set
	for _, part := range strings.Split(s, ",") {
		mode, err := ParseMode(part)
		if err != nil {
			return Set{}, err
		}
		switch mode {
		case ModeAll:
			set.Holder, set.Verifier = true, true
		case ModeHolder:
			set.Holder = true
		case ModeVerifier:
			set.Verifier = true
		}
	}
	return set, nil
}

// String lists the enabled modes
func (s Set) String() string {
	var names []string
	if s.Holder {
		names = append(names, string(ModeHolder))
	}
	if s.Verifier {
		names = append(names, string(ModeVerifier))
	}
	return strings.Join(names, ",")
}
