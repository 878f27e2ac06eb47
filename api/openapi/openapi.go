// Package openapi loads the hand-authored registry/admin OpenAPI
// document, mirroring the teacher's server.GetSwagger() (generated by
// oapi-codegen from an embedded spec string) so
// oapi-codegen/echo-middleware can validate every request against it.
// No oapi-codegen input exists for this domain in this exercise, so the
// document is hand-written rather than generated; the loading and
// validation pattern is unchanged from the teacher's.
package openapi

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed registry.yaml
var spec []byte

var (
	once    sync.Once
	loaded  *openapi3.T
	loadErr error
)

// GetSwagger parses and validates the embedded document, caching the
// result across calls the same way the teacher's generated GetSwagger
// does via its own sync.Once-guarded package variable.
func GetSwagger() (*openapi3.T, error) {
	once.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(spec)
		if err != nil {
			loadErr = fmt.Errorf("parsing embedded openapi document: %w", err)
			return
		}
		if err := doc.Validate(loader.Context); err != nil {
			loadErr = fmt.Errorf("validating embedded openapi document: %w", err)
			return
		}
		loaded = doc
	})
	return loaded, loadErr
}
