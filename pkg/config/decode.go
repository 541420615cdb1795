package config

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Decode copies the interpolated options of a section into the struct pointed to by out,
// matching keys against `mapstructure` tags. Keys without a matching field are ignored.
// Values are converted with the same rules as the typed accessors; nothing is coerced loosely.
func (r *Resolved) Decode(section string, out any) error {
	for _, key := range r.keys[section] {
		value, err := r.Get(section, key)
		if err != nil {
			return err
		}

		var convErr error
		hook := func(from, to reflect.Type, data any) (any, error) {
			if from.Kind() != reflect.String {
				return data, nil
			}
			v, err := convert(data.(string), to)
			if err != nil {
				convErr = r.convError(section, key, data.(string), to.String())
				return nil, convErr
			}
			return v, nil
		}

		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook: hook,
			Result:     out,
		})
		if err != nil {
			return err
		}
		if err := dec.Decode(map[string]any{key: value}); err != nil {
			if convErr != nil {
				return convErr
			}
			return &domain.ConfigurationError{Section: section, Key: key, Value: value, Reason: "cannot decode", Err: err}
		}
	}
	return nil
}

// convert turns a raw string into a value assignable to t, for the kinds the accessors support.
// Other target types are passed through for mapstructure to handle or reject.
func convert(s string, t reflect.Type) (any, error) {
	if t == durationType {
		return time.ParseDuration(strings.TrimSpace(s))
	}
	switch t.Kind() {
	case reflect.Bool:
		b, ok := ParseBool(s)
		if !ok {
			return nil, errors.New("invalid bool")
		}
		return b, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(n).Convert(t).Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), t.Bits())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(f).Convert(t).Interface(), nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.String {
			return SplitList(s), nil
		}
	}
	return s, nil
}
