package api

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISource []byte

//go:embed swagger.html
var swaggerPage []byte

var openAPIDocument = sync.OnceValues(buildOpenAPIDocument)

// OpenAPIDocument returns the embedded YAML description encoded as JSON.
// The document is built on first use; callers must not modify it.
func OpenAPIDocument() ([]byte, error) {
	return openAPIDocument()
}

func buildOpenAPIDocument() ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPISource, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse openapi document: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode openapi document: %w", err)
	}
	return out, nil
}
