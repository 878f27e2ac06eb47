package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDNSLabel_Valid(t *testing.T) {
	assert.True(t, isDNSLabel("my-app"))
	assert.True(t, isDNSLabel("a"))
	assert.True(t, isDNSLabel(strings.Repeat("a", 63)))
}

func TestIsDNSLabel_RejectsUppercaseAndPunctuation(t *testing.T) {
	assert.False(t, isDNSLabel("My_App.1"))
	assert.False(t, isDNSLabel("my app"))
}

func TestIsDNSLabel_RejectsLeadingOrTrailingHyphen(t *testing.T) {
	assert.False(t, isDNSLabel("-app"))
	assert.False(t, isDNSLabel("app-"))
}

func TestIsDNSLabel_RejectsEmptyOrOverLength(t *testing.T) {
	assert.False(t, isDNSLabel(""))
	assert.False(t, isDNSLabel(strings.Repeat("a", 64)))
}
