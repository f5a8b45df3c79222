package handler

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiDocument []byte

// GetSwagger parses and validates the embedded OpenAPI document for the contracts API.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(openapiDocument)
	if err != nil {
		return nil, fmt.Errorf("load contracts openapi: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate contracts openapi: %w", err)
	}
	return spec, nil
}
