// Package catalog loads the YAML files that declare available test cases and suites.
//
// A catalog file describes the test cases of one core:
//
//	core: ocean
//	config: ocean.cfg
//	test_cases:
//	  - path: ocean/baroclinic_channel/10km/default
//	    config: baroclinic_channel/default.cfg
//	    settings:
//	      namelist: {config_dt: "'00:10:00'"}
//	    steps:
//	      - {name: initial_state, kind: command, outputs: [init.nc], options: {args: ./init}}
//	      - {name: forward, kind: command, inputs: [../initial_state/init.nc]}
//
// Config paths are relative to the catalog file.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/suite"
	"gopkg.in/yaml.v3"
)

// Entry is one test case declared in a catalog.
type Entry struct {
	Path        string                       `yaml:"path"`
	Description string                       `yaml:"description,omitempty"`
	Config      string                       `yaml:"config,omitempty"`
	Settings    map[string]map[string]string `yaml:"settings,omitempty"`
	Steps       []domain.StepSpec            `yaml:"steps"`

	core       string
	coreConfig string
	file       string
}

// Core returns the core the entry belongs to.
func (e Entry) Core() string { return e.core }

// File returns the catalog file that declared the entry.
func (e Entry) File() string { return e.file }

type document struct {
	Core      string  `yaml:"core"`
	Config    string  `yaml:"config,omitempty"`
	TestCases []Entry `yaml:"test_cases"`
}

// Catalog is the ordered list of test cases from one or more catalog files.
// Numbers used for selection are indexes into this order.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

// Load reads catalog files in order. Every problem found is reported together.
func Load(paths ...string) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int)}
	var errs []error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			errs = append(errs, &domain.ConfigurationError{Source: p, Reason: "cannot read catalog", Err: err})
			continue
		}
		errs = append(errs, c.add(p, f))
		_ = f.Close()
	}
	if err := domain.Join(errs); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse reads one catalog document. name labels errors and anchors relative config paths.
func Parse(name string, r io.Reader) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int)}
	if err := c.add(name, r); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) add(name string, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return &domain.ConfigurationError{Source: name, Reason: "malformed catalog", Err: err}
	}

	dir := filepath.Dir(name)
	var errs []error
	if doc.Core == "" && len(doc.TestCases) > 0 {
		errs = append(errs, &domain.ConfigurationError{Source: name, Key: "core", Reason: "core is required"})
	}
	for _, e := range doc.TestCases {
		switch {
		case e.Path == "":
			errs = append(errs, &domain.ConfigurationError{Source: name, Key: "path", Reason: "test case without a path"})
			continue
		case doc.Core != "" && !strings.HasPrefix(e.Path, doc.Core+"/"):
			errs = append(errs, &domain.ConfigurationError{Source: name, Key: "path", Value: e.Path, Reason: fmt.Sprintf("test case path must start with %q", doc.Core+"/")})
			continue
		}
		if _, dup := c.index[e.Path]; dup {
			errs = append(errs, &domain.ConfigurationError{Source: name, Key: "path", Value: e.Path, Reason: "test case declared twice"})
			continue
		}
		e.core = doc.Core
		e.file = name
		if doc.Config != "" {
			e.coreConfig = resolve(dir, doc.Config)
		}
		if e.Config != "" {
			e.Config = resolve(dir, e.Config)
		}
		c.index[e.Path] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return domain.Join(errs)
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Entries returns every test case in catalog order.
func (c *Catalog) Entries() []Entry { return slices.Clone(c.entries) }

// Lookup returns the entry for a test case path.
func (c *Catalog) Lookup(path string) (Entry, bool) {
	i, ok := c.index[path]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Select resolves a path selector and numeric selectors into entries, in that order,
// without duplicates. Unknown paths and out-of-range numbers are ConfigurationErrors.
func (c *Catalog) Select(path string, numbers []int) ([]Entry, error) {
	var (
		out  []Entry
		seen = make(map[string]bool)
		errs []error
	)
	add := func(e Entry) {
		if !seen[e.Path] {
			seen[e.Path] = true
			out = append(out, e)
		}
	}
	if path != "" {
		if e, ok := c.Lookup(path); ok {
			add(e)
		} else {
			errs = append(errs, &domain.ConfigurationError{Key: "test", Value: path, Reason: "no such test case in the catalog"})
		}
	}
	for _, n := range numbers {
		if n < 0 || n >= len(c.entries) {
			errs = append(errs, &domain.ConfigurationError{Key: "number", Value: fmt.Sprint(n), Reason: fmt.Sprintf("test case numbers run from 0 to %d", len(c.entries)-1)})
			continue
		}
		add(c.entries[n])
	}
	if err := domain.Join(errs); err != nil {
		return nil, err
	}
	return out, nil
}

// Blueprint turns an entry into the input of suite.Setup: the core config file,
// then the test case config file, then inline settings.
func (e Entry) Blueprint() (suite.Blueprint, error) {
	var (
		sources []*config.Source
		errs    []error
	)
	if e.coreConfig != "" {
		src, err := config.ParseFile(e.coreConfig, config.LayerCore)
		if err != nil {
			errs = append(errs, err)
		} else {
			sources = append(sources, src)
		}
	}
	if e.Config != "" {
		src, err := config.ParseFile(e.Config, config.LayerTestCase)
		if err != nil {
			errs = append(errs, err)
		} else {
			sources = append(sources, src)
		}
	}
	if len(e.Settings) > 0 {
		src := config.NewSource(e.file+": "+e.Path, config.LayerTestCase)
		for _, sec := range sortedKeys(e.Settings) {
			for _, key := range sortedKeys(e.Settings[sec]) {
				src.Set(sec, key, e.Settings[sec][key])
			}
		}
		sources = append(sources, src)
	}
	if err := domain.Join(errs); err != nil {
		return suite.Blueprint{}, fmt.Errorf("test case %s: %w", e.Path, err)
	}
	return suite.Blueprint{Path: e.Path, Sources: sources, Steps: e.Steps}, nil
}

// Blueprints converts entries, reporting every failure together.
func Blueprints(entries []Entry) ([]suite.Blueprint, error) {
	out := make([]suite.Blueprint, 0, len(entries))
	var errs []error
	for _, e := range entries {
		bp, err := e.Blueprint()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, bp)
	}
	if err := domain.Join(errs); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
