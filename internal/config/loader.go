package config

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/tether/internal/signals"
)

// decode is replaced in tests to act while the cancel signal is deferred.
var decode = decodeManifest

// Load reads a worker manifest from the provided path. Reading and decoding
// run with the cancel signal deferred; an interrupt that arrived meanwhile is
// reported as an *signals.InterruptedError once decoding finishes.
func Load(ctx context.Context, path string) (*Manifest, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}

	var doc Manifest
	err = signals.Deferred(ctx, signals.CancelSignal, func(context.Context) error {
		return decode(absPath, &doc)
	})
	if err != nil {
		return nil, err
	}
	doc.Source = absPath

	manifestDir := filepath.Dir(absPath)
	resolvedWorkdir := resolveWorkdir(manifestDir, os.ExpandEnv(doc.Supervisor.Workdir))
	doc.Supervisor.Workdir = resolvedWorkdir

	for name, w := range doc.Workers {
		if w == nil {
			continue
		}
		w.ResolvedWorkdir = resolvedWorkdir

		var inlineEnv map[string]string
		if len(w.Env) > 0 {
			inlineEnv = make(map[string]string, len(w.Env))
			for k, v := range w.Env {
				inlineEnv[k] = os.ExpandEnv(v)
			}
		}

		var fileEnv map[string]string
		if w.EnvFromFile != "" {
			expanded := os.ExpandEnv(w.EnvFromFile)
			if !filepath.IsAbs(expanded) {
				expanded = filepath.Clean(filepath.Join(resolvedWorkdir, expanded))
			}
			w.EnvFromFile = expanded

			var err error
			fileEnv, err = loadEnvFile(expanded)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", workerField(name, "envFromFile"), err)
			}
		}

		var merged map[string]string
		if len(fileEnv) > 0 {
			merged = make(map[string]string, len(fileEnv)+len(inlineEnv))
			for k, v := range fileEnv {
				merged[k] = v
			}
		}
		if len(inlineEnv) > 0 {
			if merged == nil {
				merged = make(map[string]string, len(inlineEnv))
			}
			for k, v := range inlineEnv {
				merged[k] = v
			}
		}
		w.Env = merged
	}

	if err := doc.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

func decodeManifest(path string, doc *Manifest) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}
	if raw == nil {
		return fmt.Errorf("%s: manifest is empty", path)
	}
	if err := validateAgainstSchema(raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(doc); err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}
	return nil
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return base
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasPrefix(raw, "export ") {
			raw = strings.TrimSpace(raw[len("export "):])
		}
		sep := strings.IndexRune(raw, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(raw[:sep])
		if key == "" {
			return nil, fmt.Errorf("load env file %q: invalid key on line %d", path, lineNo)
		}
		value := strings.TrimSpace(raw[sep+1:])
		if strings.HasPrefix(value, "\"") {
			if len(value) < 2 || value[len(value)-1] != '"' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		} else if strings.HasPrefix(value, "'") {
			if len(value) < 2 || value[len(value)-1] != '\'' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		} else if comment := strings.IndexRune(value, '#'); comment >= 0 {
			value = strings.TrimSpace(value[:comment])
		}
		values[key] = os.ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}
