package provider

import (
	"bytes"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	logx "matchbot/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PathRoot marks a payload that could not be decoded at all.
const PathRoot = "$"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report wire names (homeTeam.name) rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses raw into T and validates it.
//
// It never fails: malformed JSON yields the zero value and the path "$";
// validation failures keep whatever decoded and return the offending field
// paths. Both are logged at warn. An empty payload is only reported when
// allowEmpty is false.
func Decode[T any](log logx.Logger, endpoint string, raw []byte, allowEmpty bool) (T, []string) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		if allowEmpty {
			return out, nil
		}
		log.Warn("payload empty", logx.String("endpoint", endpoint), logx.Strings("fields", []string{PathRoot}))
		return out, []string{PathRoot}
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		var zero T
		log.Warn("payload decode failed",
			logx.String("endpoint", endpoint),
			logx.Strings("fields", []string{PathRoot}),
			logx.Err(err),
		)
		return zero, []string{PathRoot}
	}

	fields := invalidFields(out)
	if len(fields) > 0 {
		log.Warn("payload validation failed",
			logx.String("endpoint", endpoint),
			logx.Strings("fields", fields),
		)
	}
	return out, fields
}

func invalidFields(v any) []string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	err := validate.Struct(rv.Interface())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{PathRoot}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, stripRoot(fe.Namespace()))
	}
	return out
}

// stripRoot drops the Go type name validator prefixes to every namespace.
func stripRoot(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
