package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	tetherschema "github.com/Paintersrp/tether/schema"
)

const workersSchemaURL = "workers.v1.json"

var compileWorkersSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(workersSchemaURL, bytes.NewReader(tetherschema.WorkersV1Schema)); err != nil {
		return nil, fmt.Errorf("add workers schema resource: %w", err)
	}
	schema, err := compiler.Compile(workersSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workers schema: %w", err)
	}
	return schema, nil
})

// SchemaIssue is a single schema violation at a dotted manifest location such
// as workers.api.command.
type SchemaIssue struct {
	Location string
	Message  string
}

// SchemaError reports every leaf violation found while validating a manifest
// against the embedded schema.
type SchemaError struct {
	Issues []SchemaIssue
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema validation failed:")
	for _, issue := range e.Issues {
		fmt.Fprintf(&b, "\n  - %s: %s", issue.Location, issue.Message)
	}
	return b.String()
}

func validateAgainstSchema(doc map[string]any) error {
	schema, err := compileWorkersSchema()
	if err != nil {
		return fmt.Errorf("load workers schema: %w", err)
	}

	// The validator only understands JSON types, so round-trip the YAML tree.
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("prepare manifest for schema validation: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("prepare manifest for schema validation: %w", err)
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	var vErr *jsonschema.ValidationError
	if !errors.As(err, &vErr) {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return &SchemaError{Issues: collectIssues(vErr)}
}

// collectIssues flattens the validator's cause tree into leaf violations,
// sorted by location.
func collectIssues(root *jsonschema.ValidationError) []SchemaIssue {
	var issues []SchemaIssue
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			issues = append(issues, SchemaIssue{
				Location: manifestLocation(e.InstanceLocation),
				Message:  e.Message,
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(root)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Location < issues[j].Location })
	return issues
}

// manifestLocation turns a JSON pointer into the dotted form used by
// validation errors elsewhere in this package.
func manifestLocation(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "manifest"
	}
	segments := strings.Split(ptr, "/")
	for i, segment := range segments {
		segments[i] = strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
	}
	return strings.Join(segments, ".")
}
