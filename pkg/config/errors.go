package config

import (
	"fmt"
	"strings"

	"github.com/aretw0/cairn/pkg/domain"
)

// InterpolationError reports a ${section:key} reference that could not be resolved.
type InterpolationError struct {
	Section string
	Key     string
	Ref     string   // The offending reference as written
	Chain   []string // Options visited, outermost first, as "section:key"
	Reason  string
}

func (e *InterpolationError) Error() string {
	msg := fmt.Sprintf("cannot interpolate [%s] %s", e.Section, e.Key)
	if e.Ref != "" {
		msg += fmt.Sprintf(": reference ${%s}", e.Ref)
	}
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if len(e.Chain) > 1 {
		msg += " (via " + strings.Join(e.Chain, " -> ") + ")"
	}
	return msg
}

// Is matches both ErrInterpolation and the broader ErrConfiguration.
func (e *InterpolationError) Is(target error) bool {
	return target == domain.ErrInterpolation || target == domain.ErrConfiguration
}

// TypeConversionError reports a raw value that does not parse as the requested type.
type TypeConversionError struct {
	Section string
	Key     string
	Value   string
	Type    string
	Origin  string // Name of the source that set the value
}

func (e *TypeConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert [%s] %s = %q to %s", e.Section, e.Key, e.Value, e.Type)
	if e.Origin != "" {
		msg += " (set in " + e.Origin + ")"
	}
	return msg
}

func (e *TypeConversionError) Is(target error) bool { return target == domain.ErrTypeConversion }
