package endpointcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbeContentType_PassesThroughWhenProvided(t *testing.T) {
	assert.Equal(t, "text/plain", ProbeContentType("text/plain", []byte(`{"a":1}`)))
}

func TestProbeContentType_SniffsJSON(t *testing.T) {
	assert.Equal(t, contentTypeJSON, ProbeContentType("", []byte(`{"a":1}`)))
}

func TestProbeContentType_FallsBackToOctetStream(t *testing.T) {
	assert.Equal(t, contentTypeOctet, ProbeContentType("", []byte("not json")))
}
