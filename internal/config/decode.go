package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

type format string

const (
	formatJSON format = "json"
	formatYAML format = "yaml"
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

// decode parses a config file. YAML goes through a generic tree and is
// re-encoded as JSON, so both formats share one strict decoder: unknown keys
// and trailing documents are errors.
func decode(path string, b []byte) (*Config, error) {
	f := formatOf(path)
	if f == formatYAML {
		var tree any
		if err := yaml.Unmarshal(b, &tree); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
		if tree == nil {
			// An empty file is an empty config.
			tree = map[string]any{}
		}
		jb, err := json.Marshal(stringKeys(tree))
		if err != nil {
			return nil, fmt.Errorf("convert yaml config: %w", err)
		}
		b = jb
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", f, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("decode %s config: trailing data", f)
		}
		return nil, fmt.Errorf("decode %s config: %w", f, err)
	}
	return &cfg, nil
}

// stringKeys rewrites YAML maps keyed by non-strings (e.g. `1: x`) so the
// tree can be JSON-encoded.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case []any:
		for i, e := range x {
			x[i] = stringKeys(e)
		}
		return x
	default:
		return v
	}
}
