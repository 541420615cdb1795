package config

import (
	"slices"
	"sort"
)

// Merge layers the sources by precedence and returns an immutable Resolved.
// Sources are stably ordered by Layer, so within one layer argument order decides.
// Later sources override earlier ones per (section, key), never per section.
// Interpolation is deferred until a value is read.
func Merge(sources ...*Source) *Resolved {
	ordered := make([]*Source, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Layer < ordered[j].Layer })

	r := &Resolved{
		sources: ordered,
		values:  make(map[string]map[string]entry),
		keys:    make(map[string][]string),
	}
	for _, src := range ordered {
		for _, sec := range src.sections {
			bucket, ok := r.values[sec]
			if !ok {
				bucket = make(map[string]entry)
				r.values[sec] = bucket
				r.sections = append(r.sections, sec)
			}
			for _, k := range src.keys[sec] {
				if _, seen := bucket[k]; !seen {
					r.keys[sec] = append(r.keys[sec], k)
				}
				bucket[k] = entry{raw: src.values[sec][k], origin: src.Name}
			}
		}
	}
	return r
}

// With returns a new Resolved with extra sources merged over the receiver's sources.
// The receiver is left untouched.
func (r *Resolved) With(sources ...*Source) *Resolved {
	return Merge(append(slices.Clone(r.sources), sources...)...)
}
