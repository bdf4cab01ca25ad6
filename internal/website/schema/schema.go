// Package schema validates website documents at ingest against the embedded
// JSON Schema. The schema guards shape only; the semantic contract (English
// fallbacks, purpose uniqueness) stays in site.Validate.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	dErrors "assent/pkg/domain-errors"
)

//go:embed website.schema.json
var websiteSchema string

const schemaURL = "https://assent.schemas.local/website.schema.json"

// Validator checks raw website documents against the compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema. Compilation failure is a
// programming error surfaced at startup, not at request time.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, strings.NewReader(websiteSchema)); err != nil {
		return nil, fmt.Errorf("load website schema: %w", err)
	}
	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile website schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks a raw JSON document. Failures come back as coded
// validation errors carrying the first schema violation.
func (v *Validator) Validate(raw []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "document is not valid JSON")
	}
	if err := v.schema.Validate(doc); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "document violates the website schema")
	}
	return nil
}
