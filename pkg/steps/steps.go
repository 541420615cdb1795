// Package steps provides the built-in step kinds:
//
//	command   run an external program (optionally through a parallel launcher)
//	write     write a file from literal content or a configuration section
//	checksum  record SHA-256 digests of earlier outputs
//
// Options arrive already interpolated against the test case configuration.
package steps

import (
	"fmt"
	"reflect"

	"github.com/aretw0/cairn/pkg/adapters/process"
	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/registry"
	"github.com/mitchellh/mapstructure"
)

const (
	KindCommand  = "command"
	KindWrite    = "write"
	KindChecksum = "checksum"
)

// Register adds the built-in kinds to reg. Command steps execute through runner.
func Register(reg *registry.Registry, runner *process.Runner) {
	reg.Register(KindCommand, Command(runner))
	reg.Register(KindWrite, Write)
	reg.Register(KindChecksum, Checksum)
}

// boolHook lets options use the same boolean spellings as configuration files.
func boolHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	b, ok := config.ParseBool(data.(string))
	if !ok {
		return nil, fmt.Errorf("%q is not a boolean", data)
	}
	return b, nil
}

// decodeOptions maps spec.Options onto out. Unknown option names are rejected so typos surface at setup.
func decodeOptions(spec domain.StepSpec, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       boolHook,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(spec.Options); err != nil {
		return &domain.ConfigurationError{
			Source: fmt.Sprintf("step %q", spec.Name),
			Reason: "invalid options",
			Err:    err,
		}
	}
	return nil
}

func missingOption(spec domain.StepSpec, key string) error {
	return &domain.ConfigurationError{
		Source: fmt.Sprintf("step %q", spec.Name),
		Key:    key,
		Reason: fmt.Sprintf("option is required for %s steps", spec.Kind),
	}
}
