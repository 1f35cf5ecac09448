// Reference resolution for configuration values.
//
// String settings may contain {NAME} references that are replaced with values
// from the environment (including a loaded .env file), so secrets such as
// backend tokens stay out of the TOML files:
//
//	[backend]
//	token = "{COLLECTOR_API_TOKEN}"
//
// Unresolved references are left unchanged and logged.
package common

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
)

var referencePattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// EnvValues returns the process environment as a lookup map
func EnvValues() map[string]string {
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			values[name] = value
		}
	}
	return values
}

// ReplaceReferences substitutes every {NAME} in input found in values
func ReplaceReferences(input string, values map[string]string, logger arbor.ILogger) string {
	if input == "" || !strings.Contains(input, "{") {
		return input
	}

	return referencePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := values[name]; ok {
			return value
		}
		if logger != nil {
			logger.Warn().Str("reference", match).Msg("Unresolved config reference")
		}
		return match
	})
}

// ResolveReferences replaces references in every string of config.
// Secrets are never logged, only the field that referenced them.
func ResolveReferences(config *Config, values map[string]string, logger arbor.ILogger) error {
	return replaceInValue(reflect.ValueOf(config), "config", values, logger)
}

func replaceInValue(val reflect.Value, path string, values map[string]string, logger arbor.ILogger) error {
	switch val.Kind() {
	case reflect.Ptr:
		if val.IsNil() {
			return nil
		}
		return replaceInValue(val.Elem(), path, values, logger)

	case reflect.Interface:
		if val.IsNil() {
			return nil
		}
		// Values held in an interface are not settable; work on a copy
		inner := reflect.New(val.Elem().Type()).Elem()
		inner.Set(val.Elem())
		if err := replaceInValue(inner, path, values, logger); err != nil {
			return err
		}
		if val.CanSet() {
			val.Set(inner)
		}

	case reflect.Struct:
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			if !typ.Field(i).IsExported() {
				continue
			}
			name := typ.Field(i).Tag.Get("toml")
			if name == "" {
				name = typ.Field(i).Name
			}
			if err := replaceInValue(val.Field(i), path+"."+name, values, logger); err != nil {
				return err
			}
		}

	case reflect.String:
		if !val.CanSet() {
			return nil
		}
		if replaced := ReplaceReferences(val.String(), values, logger); replaced != val.String() {
			val.SetString(replaced)
			if logger != nil {
				logger.Debug().Str("field", path).Msg("Resolved config reference")
			}
		}

	case reflect.Slice:
		for i := 0; i < val.Len(); i++ {
			if err := replaceInValue(val.Index(i), fmt.Sprintf("%s[%d]", path, i), values, logger); err != nil {
				return err
			}
		}

	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return nil
		}
		// Map elements are not addressable; rewrite a copy and store it back
		for _, key := range val.MapKeys() {
			elem := val.MapIndex(key)
			copied := reflect.New(elem.Type()).Elem()
			copied.Set(elem)
			if err := replaceInValue(copied, path+"."+key.String(), values, logger); err != nil {
				return err
			}
			val.SetMapIndex(key, copied)
		}
	}

	return nil
}
