package config

import (
	"slices"
	"strings"
)

// DefaultSection holds options visible from every section, as in INI files
// where keys precede the first section header.
const DefaultSection = "DEFAULT"

// expand replaces every ${section:key} or ${key} in s. Bare keys refer to the
// section the value lives in. "$$" is a literal dollar sign. chain holds the
// options already being resolved, so a repeat is a cycle.
func (r *Resolved) expand(section, key, s string, chain []string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '$' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case '$':
			b.WriteByte('$')
			i++
			continue
		case '{':
		default:
			b.WriteByte(c)
			continue
		}

		end := strings.IndexByte(s[i+2:], '}')
		if end < 0 {
			return "", &InterpolationError{Section: section, Key: key, Ref: s[i+2:], Chain: chain, Reason: "is not terminated"}
		}
		ref := s[i+2 : i+2+end]
		i += 2 + end

		refSection, refKey, ok := splitRef(section, ref)
		if !ok {
			return "", &InterpolationError{Section: section, Key: key, Ref: ref, Chain: chain, Reason: "is malformed"}
		}
		id := refSection + ":" + refKey
		if slices.Contains(chain, id) {
			return "", &InterpolationError{Section: section, Key: key, Ref: ref, Chain: append(chain[:len(chain):len(chain)], id), Reason: "is cyclic"}
		}
		e, found := r.lookup(refSection, refKey)
		if !found {
			return "", &InterpolationError{Section: section, Key: key, Ref: ref, Chain: chain, Reason: "is not set"}
		}
		v, err := r.expand(refSection, refKey, e.raw, append(chain[:len(chain):len(chain)], id))
		if err != nil {
			return "", err
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

func splitRef(section, ref string) (string, string, bool) {
	ref = strings.TrimSpace(ref)
	sec, key, qualified := strings.Cut(ref, ":")
	if !qualified {
		sec, key = section, ref
	}
	sec, key = strings.TrimSpace(sec), strings.ToLower(strings.TrimSpace(key))
	if sec == "" || key == "" || strings.ContainsAny(key, ":${") {
		return "", "", false
	}
	return sec, key, true
}
