package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffPaths_EmptyDiffEmitsDot(t *testing.T) {
	doc := Document{Metadata: map[string]any{"a": 1}}
	assert.Equal(t, []string{"."}, DiffPaths(doc, doc))
}

func TestDiffPaths_MetadataChange(t *testing.T) {
	prior := Document{Metadata: map[string]any{"generation": 1}}
	next := Document{Metadata: map[string]any{"generation": 2}}
	assert.Equal(t, []string{".metadata"}, DiffPaths(prior, next))
}

func TestDiffPaths_SpecSubsectionChange(t *testing.T) {
	prior := Document{Spec: map[string]any{"credentials": []string{"a"}}}
	next := Document{Spec: map[string]any{"credentials": []string{"a", "b"}}}
	assert.Equal(t, []string{".spec.credentials"}, DiffPaths(prior, next))
}

func TestDiffPaths_StatusKeyAdded(t *testing.T) {
	prior := Document{Status: map[string]any{}}
	next := Document{Status: map[string]any{"connection": "up"}}
	assert.Equal(t, []string{".status.connection"}, DiffPaths(prior, next))
}

func TestDiffPaths_StatusKeyRemoved(t *testing.T) {
	prior := Document{Status: map[string]any{"connection": "up"}}
	next := Document{Status: map[string]any{}}
	assert.Equal(t, []string{".status.connection"}, DiffPaths(prior, next))
}
