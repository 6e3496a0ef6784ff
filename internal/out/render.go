package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/zephyra-labs/zephyra-cli/internal/config"
	"github.com/zephyra-labs/zephyra-cli/internal/model"
)

func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.ResultsOnly {
		if settings.OutputMode == "json" {
			return encodeJSON(w, data)
		}
		return renderPlain(w, data)
	}

	if settings.OutputMode == "json" {
		env.Data = data
		return encodeJSON(w, env)
	}

	plain := map[string]any{
		"success":  env.Success,
		"data":     data,
		"warnings": env.Warnings,
		"meta":     env.Meta,
	}
	if env.Error != nil {
		plain["error"] = env.Error
	}
	return renderPlain(w, plain)
}

// RenderEvent writes one streamed record (watch mode): a compact JSON line,
// or a key=value line in plain mode.
func RenderEvent(w io.Writer, event any, settings config.Settings) error {
	if settings.OutputMode == "json" {
		return json.NewEncoder(w).Encode(event)
	}
	line, err := toLine(normalizeValue(event))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, line)
	return err
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderPlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			line, err := toLine(normalizeValue(v.Index(i).Interface()))
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		return nil
	default:
		line, err := toLine(normalizeValue(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
}

// project keeps the selected fields. A dotted field such as
// health_factor.display reaches into nested objects.
func project(data any, fields []string) any {
	n := normalizeValue(data)
	switch t := n.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, projectMap(m, fields))
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return n
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, strings.Split(f, ".")); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path []string) (any, bool) {
	v, ok := m[path[0]]
	if !ok || len(path) == 1 {
		return v, ok
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(child, path[1:])
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

// toLine flattens nested objects into dotted keys so a snapshot fits on one
// line.
func toLine(v any) (string, error) {
	switch t := v.(type) {
	case map[string]any:
		flat := map[string]any{}
		flatten("", t, flat)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			val := flat[k]
			if _, nested := val.([]any); nested {
				buf, err := json.Marshal(val)
				if err != nil {
					return "", err
				}
				val = string(buf)
			}
			parts = append(parts, fmt.Sprintf("%s=%v", k, val))
		}
		return strings.Join(parts, " "), nil
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
}

func flatten(prefix string, m map[string]any, into map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok && len(child) > 0 {
			flatten(key, child, into)
			continue
		}
		into[key] = v
	}
}
