package request

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://pwa-update-manager.local/schemas/pending-request.schema.json"

//go:embed pending_request.schema.json
var schemaDocument []byte

// ErrInvalidArtifact is returned when a pending request does not match its schema
var ErrInvalidArtifact = errors.New("invalid pending update request")

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDocument))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pending request schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to load pending request schema: %w", err)
	}
	return c.Compile(schemaURL)
})

// Validate checks an encoded artifact against the pending request schema. The packaging
// side can call it before consuming a file.
func Validate(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	return nil
}
