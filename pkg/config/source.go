package config

import (
	"fmt"
	"strings"
)

// Layer orders sources by precedence. Higher layers win.
type Layer int

const (
	LayerMachine  Layer = iota // Machine-specific defaults (executables, cores, scratch paths)
	LayerCore                  // Defaults of the model core a test case belongs to
	LayerTestCase              // Test-case-specific defaults
	LayerUser                  // User-supplied override files
	LayerCLI                   // Single-value overrides from the command line
)

func (l Layer) String() string {
	switch l {
	case LayerMachine:
		return "machine"
	case LayerCore:
		return "core"
	case LayerTestCase:
		return "test_case"
	case LayerUser:
		return "user"
	case LayerCLI:
		return "cli"
	}
	return fmt.Sprintf("layer(%d)", int(l))
}

// Source is one named, ordered mapping of section -> key -> raw value.
// A Source is mutable while it is being built; Merge copies what it needs.
type Source struct {
	Name  string
	Layer Layer

	sections []string
	keys     map[string][]string
	values   map[string]map[string]string
}

// NewSource creates an empty source.
func NewSource(name string, layer Layer) *Source {
	return &Source{
		Name:   name,
		Layer:  layer,
		keys:   make(map[string][]string),
		values: make(map[string]map[string]string),
	}
}

// Set stores a raw value, keeping first-insertion order of sections and keys.
// Keys are case-insensitive and stored lower-cased; sections are case-sensitive.
// Values are trimmed like parsed ones, so a written config reads back unchanged.
func (s *Source) Set(section, key, value string) *Source {
	key = strings.ToLower(key)
	value = strings.TrimSpace(value)
	sec, ok := s.values[section]
	if !ok {
		sec = make(map[string]string)
		s.values[section] = sec
		s.sections = append(s.sections, section)
	}
	if _, exists := sec[key]; !exists {
		s.keys[section] = append(s.keys[section], key)
	}
	sec[key] = value
	return s
}

// Get returns the raw value of an option in this source only.
func (s *Source) Get(section, key string) (string, bool) {
	v, ok := s.values[section][strings.ToLower(key)]
	return v, ok
}

// Sections returns section names in insertion order.
func (s *Source) Sections() []string {
	return append([]string(nil), s.sections...)
}

// Keys returns the keys of a section in insertion order.
func (s *Source) Keys(section string) []string {
	return append([]string(nil), s.keys[section]...)
}

// Len returns the number of options in the source.
func (s *Source) Len() int {
	n := 0
	for _, sec := range s.values {
		n += len(sec)
	}
	return n
}
