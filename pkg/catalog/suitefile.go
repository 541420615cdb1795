package catalog

import (
	"errors"
	"io"
	"os"

	"github.com/aretw0/cairn/pkg/domain"
	"gopkg.in/yaml.v3"
)

// SuiteFile names a suite and lists its test cases by path, in run order.
//
//	name: nightly
//	test_cases:
//	  - ocean/baroclinic_channel/10km/default
//	  - ocean/baroclinic_channel/10km/threads_test
type SuiteFile struct {
	Name      string   `yaml:"name"`
	TestCases []string `yaml:"test_cases"`
}

// LoadSuite reads a suite file.
func LoadSuite(path string) (SuiteFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return SuiteFile{}, &domain.ConfigurationError{Source: path, Reason: "cannot read suite file", Err: err}
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var sf SuiteFile
	if err := dec.Decode(&sf); err != nil && !errors.Is(err, io.EOF) {
		return SuiteFile{}, &domain.ConfigurationError{Source: path, Reason: "malformed suite file", Err: err}
	}
	if sf.Name == "" {
		return SuiteFile{}, &domain.ConfigurationError{Source: path, Key: "name", Reason: "suite name is required"}
	}
	if len(sf.TestCases) == 0 {
		return SuiteFile{}, &domain.ConfigurationError{Source: path, Key: "test_cases", Reason: "suite lists no test cases"}
	}
	return sf, nil
}

// Resolve looks up every test case of the suite, reporting all unknown paths together.
func (c *Catalog) Resolve(sf SuiteFile) ([]Entry, error) {
	out := make([]Entry, 0, len(sf.TestCases))
	var errs []error
	for _, p := range sf.TestCases {
		e, ok := c.Lookup(p)
		if !ok {
			errs = append(errs, &domain.ConfigurationError{Source: sf.Name, Value: p, Reason: "no such test case in the catalog"})
			continue
		}
		out = append(out, e)
	}
	if err := domain.Join(errs); err != nil {
		return nil, err
	}
	return out, nil
}
