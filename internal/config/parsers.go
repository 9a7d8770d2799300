// Package config loads macrovars settings from flags, config files and the
// environment.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Config file values arrive from viper already decoded: YAML and JSON give
// string, bool, int or float64; TOML gives int64. Tables are
// map[string]interface{} and lists are []interface{}. The helpers below
// accept exactly those shapes.

// foldKey makes "base_url", "base-url" and "BaseURL" the same key.
func foldKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("_", "", "-", "").Replace(key)
}

// lookupSetting returns the value stored under the first candidate key
// present in settings. Keys compare after folding case and separators.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, candidate := range candidates {
		want := foldKey(candidate)
		for key, val := range settings {
			if foldKey(key) == want {
				return val, true
			}
		}
	}
	return nil, false
}

// toStringKeyMap checks that value is a settings table.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	default:
		return nil, fmt.Errorf("expected a table of settings, got %s", describe(value))
	}
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool, int, int64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("expected text, got %s", describe(value))
	}
}

// asInt accepts whole numbers only. 2.5 is rejected rather than truncated.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected a whole number, got %g", v)
		}
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("expected a whole number, got %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected a whole number, got %s", describe(value))
	}
}

// asFloat64 reads a fraction such as tracing.sample_rate.
func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", describe(value))
	}
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("expected true or false, got %q", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("expected true or false, got %s", describe(value))
	}
}

// asDuration reads "30s" style strings. Bare numbers are seconds, so
// timeout: 2.5 in YAML means 2500ms.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("expected a duration such as 30s, got %q", v)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("expected a duration, got %s", describe(value))
	}
}

// asStringMap reads a table of text values such as canvas.headers or mapper.
func asStringMap(value interface{}) (map[string]string, error) {
	var table map[string]interface{}
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case map[string]interface{}:
		table = v
	default:
		return nil, fmt.Errorf("expected a table of text values, got %s", describe(value))
	}
	out := make(map[string]string, len(table))
	for k, raw := range table {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("empty key")
		}
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// asStringSlice reads a list such as roles.qualifying. A single string is a
// comma separated list, which keeps "Learner, TA" working from env-style
// values.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i+1, err)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %s", describe(value))
	}
}

func describe(value interface{}) string {
	switch value.(type) {
	case []interface{}:
		return "a list"
	case map[string]interface{}:
		return "a table"
	default:
		return fmt.Sprintf("%T", value)
	}
}
