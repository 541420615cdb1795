package config

import (
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/aretw0/cairn/pkg/domain"
	"gopkg.in/ini.v1"
)

type entry struct {
	raw    string
	origin string
}

// Resolved is the merged view of a set of sources. It never changes after Merge;
// use With to layer more sources on top.
// A Resolved is safe for concurrent reads.
type Resolved struct {
	sources  []*Source
	sections []string
	keys     map[string][]string
	values   map[string]map[string]entry
}

func (r *Resolved) lookup(section, key string) (entry, bool) {
	key = strings.ToLower(key)
	if e, ok := r.values[section][key]; ok {
		return e, true
	}
	e, ok := r.values[DefaultSection][key]
	return e, ok
}

// Has reports whether the option is set in any source (or in DEFAULT).
func (r *Resolved) Has(section, key string) bool {
	_, ok := r.lookup(section, key)
	return ok
}

// Raw returns the merged value before interpolation.
func (r *Resolved) Raw(section, key string) (string, bool) {
	e, ok := r.lookup(section, key)
	return e.raw, ok
}

// Origin returns the name of the source that supplied the winning value.
func (r *Resolved) Origin(section, key string) string {
	e, _ := r.lookup(section, key)
	return e.origin
}

// Sections returns section names in first-seen order.
func (r *Resolved) Sections() []string {
	return slices.Clone(r.sections)
}

// Keys returns the keys set in a section, in first-seen order. DEFAULT keys are not included.
func (r *Resolved) Keys(section string) []string {
	return slices.Clone(r.keys[section])
}

// Sources returns the ordered sources the receiver was merged from.
func (r *Resolved) Sources() []*Source {
	return slices.Clone(r.sources)
}

// Get returns the fully interpolated value of an option.
func (r *Resolved) Get(section, key string) (string, error) {
	e, ok := r.lookup(section, key)
	if !ok {
		return "", &domain.ConfigurationError{Section: section, Key: key, Reason: "option is not set"}
	}
	return r.expand(section, strings.ToLower(key), e.raw, []string{section + ":" + strings.ToLower(key)})
}

// Expand interpolates an arbitrary string as if it were a value of section.
func (r *Resolved) Expand(section, s string) (string, error) {
	return r.expand(section, "", s, nil)
}

func (r *Resolved) convError(section, key, value, typ string) error {
	return &TypeConversionError{Section: section, Key: key, Value: value, Type: typ, Origin: r.Origin(section, key)}
}

// GetInt parses the option as a base-10 integer.
func (r *Resolved) GetInt(section, key string) (int, error) {
	v, err := r.Get(section, key)
	if err != nil {
		return 0, err
	}
	n, perr := strconv.ParseInt(strings.TrimSpace(v), 10, strconv.IntSize)
	if perr != nil {
		return 0, r.convError(section, key, v, "int")
	}
	return int(n), nil
}

// GetFloat parses the option as a finite float64.
func (r *Resolved) GetFloat(section, key string) (float64, error) {
	v, err := r.Get(section, key)
	if err != nil {
		return 0, err
	}
	f, perr := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if perr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, r.convError(section, key, v, "float")
	}
	return f, nil
}

// GetBool accepts 1/yes/true/on and 0/no/false/off, ignoring case.
func (r *Resolved) GetBool(section, key string) (bool, error) {
	v, err := r.Get(section, key)
	if err != nil {
		return false, err
	}
	b, ok := ParseBool(v)
	if !ok {
		return false, r.convError(section, key, v, "bool")
	}
	return b, nil
}

// GetList splits the option on commas and whitespace, dropping empty items.
func (r *Resolved) GetList(section, key string) ([]string, error) {
	v, err := r.Get(section, key)
	if err != nil {
		return nil, err
	}
	return SplitList(v), nil
}

// GetDuration parses the option as a Go duration ("90s", "1h30m").
func (r *Resolved) GetDuration(section, key string) (time.Duration, error) {
	v, err := r.Get(section, key)
	if err != nil {
		return 0, err
	}
	d, perr := time.ParseDuration(strings.TrimSpace(v))
	if perr != nil {
		return 0, r.convError(section, key, v, "duration")
	}
	return d, nil
}

// Validate resolves every option and reports all failures together.
func (r *Resolved) Validate() error {
	var errs []error
	for _, sec := range r.sections {
		for _, k := range r.keys[sec] {
			if _, err := r.Get(sec, k); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return domain.Join(errs)
}

// WriteTo serializes the merged raw values as INI. Interpolation references are
// kept as written so that re-parsing the output yields an equivalent Resolved.
func (r *Resolved) WriteTo(w io.Writer) (int64, error) {
	f := ini.Empty(loadOptions)
	for _, sec := range r.sections {
		s, err := f.NewSection(sec)
		if err != nil {
			return 0, err
		}
		for _, k := range r.keys[sec] {
			if _, err := s.NewKey(k, r.values[sec][k].raw); err != nil {
				return 0, err
			}
		}
	}
	return f.WriteTo(w)
}

// SplitList splits on commas and whitespace.
func SplitList(v string) []string {
	return strings.FieldsFunc(v, func(c rune) bool { return c == ',' || unicode.IsSpace(c) })
}

// ParseBool accepts 1/yes/true/on and 0/no/false/off, ignoring case and surrounding space.
func ParseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true", "on":
		return true, true
	case "0", "no", "false", "off":
		return false, true
	}
	return false, false
}
