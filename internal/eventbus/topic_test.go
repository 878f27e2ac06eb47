package eventbus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventsTopic_DNSLabelNamePassesThrough(t *testing.T) {
	assert.Equal(t, "events-my-app", EventsTopic("my-app"))
}

func TestEventsTopic_UppercaseFallsBackToHash(t *testing.T) {
	topic := EventsTopic("My_App.1")
	assert.True(t, strings.HasPrefix(topic, "evt-"))
}

func TestEventsTopic_NonDNSLabelFallsBackToHash(t *testing.T) {
	topic := EventsTopic("my app/with slashes")
	assert.True(t, strings.HasPrefix(topic, "evt-"))
	assert.True(t, isDNSLabel("my-app"))
	assert.False(t, isDNSLabel("my app/with slashes"))
}

func TestEventsTopic_IsStableForSameInput(t *testing.T) {
	assert.Equal(t, EventsTopic("weird!name"), EventsTopic("weird!name"))
}

func TestEventsTopic_OverLengthFallsBackToHash(t *testing.T) {
	long := strings.Repeat("a", 64)
	topic := EventsTopic(long)
	assert.True(t, strings.HasPrefix(topic, "evt-"))
}

func TestPartitionKey_PercentEncodesSegments(t *testing.T) {
	assert.Equal(t, "my%2Fapp/dev-1", PartitionKey("my/app", "dev-1"))
}
