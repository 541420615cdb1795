package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/cairn/pkg/domain"
	"gopkg.in/ini.v1"
)

var loadOptions = ini.LoadOptions{
	// Option names are case-insensitive, as in the model configuration files we consume.
	InsensitiveKeys:            true,
	// A '#' inside a value (e.g. a URL fragment) is data, not a comment.
	IgnoreInlineComment:        true,
	AllowPythonMultilineValues: true,
	// Quoted namelist values such as '00:10:00' keep their quotes.
	PreserveSurroundedQuote:    true,
	SkipUnrecognizableLines:    false,
	KeyValueDelimiters:         "=",
}

// ParseFile reads an INI file into a Source named after its path.
func ParseFile(path string, layer Layer) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: path, Reason: "cannot read config file", Err: err}
	}
	return Parse(path, layer, data)
}

// Parse reads INI text. Keys outside any section land in the DEFAULT section.
func Parse(name string, layer Layer, data []byte) (*Source, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: name, Reason: "malformed config", Err: err}
	}

	src := NewSource(name, layer)
	for _, sec := range f.Sections() {
		keys := sec.Keys()
		if sec.Name() == ini.DefaultSection && len(keys) == 0 {
			continue
		}
		for _, k := range keys {
			// Value() is the raw text; String() would apply the library's own %(key)s expansion.
			src.Set(sec.Name(), k.Name(), k.Value())
		}
	}
	return src, nil
}

// ParseOverride splits a "section:key=value" expression.
func ParseOverride(expr string) (section, key, value string, err error) {
	ref, value, ok := strings.Cut(expr, "=")
	if !ok {
		return "", "", "", &domain.ConfigurationError{Source: "command line", Value: expr, Reason: `override must look like "section:key=value"`}
	}
	section, key, ok = strings.Cut(strings.TrimSpace(ref), ":")
	section, key = strings.TrimSpace(section), strings.ToLower(strings.TrimSpace(key))
	if !ok || section == "" || key == "" {
		return "", "", "", &domain.ConfigurationError{Source: "command line", Value: expr, Reason: `override must look like "section:key=value"`}
	}
	return section, key, strings.TrimSpace(value), nil
}

// Overrides builds a LayerCLI source from "section:key=value" expressions. Later expressions win.
func Overrides(exprs []string) (*Source, error) {
	src := NewSource("command line", LayerCLI)
	for _, expr := range exprs {
		section, key, value, err := ParseOverride(expr)
		if err != nil {
			return nil, err
		}
		src.Set(section, key, value)
	}
	return src, nil
}

// ParseFiles parses several files at the same layer, stopping at the first failure.
func ParseFiles(layer Layer, paths ...string) ([]*Source, error) {
	out := make([]*Source, 0, len(paths))
	for _, p := range paths {
		src, err := ParseFile(p, layer)
		if err != nil {
			return nil, fmt.Errorf("%s config: %w", layer, err)
		}
		out = append(out, src)
	}
	return out, nil
}
