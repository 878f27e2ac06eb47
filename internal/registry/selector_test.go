package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_EqualsAndNotEqualsAreMutuallyExclusive(t *testing.T) {
	sel, err := ParseSelector("region=eu")
	require.NoError(t, err)
	notSel, err := ParseSelector("region!=eu")
	require.NoError(t, err)

	labels := map[string]string{"region": "eu"}
	assert.True(t, sel.Matches(labels))
	assert.False(t, notSel.Matches(labels))

	other := map[string]string{"region": "us"}
	assert.False(t, sel.Matches(other))
	assert.True(t, notSel.Matches(other))
}

func TestSelector_InEquivalentToOrOfEquals(t *testing.T) {
	sel, err := ParseSelector("tier in (gold, silver)")
	require.NoError(t, err)

	assert.True(t, sel.Matches(map[string]string{"tier": "gold"}))
	assert.True(t, sel.Matches(map[string]string{"tier": "silver"}))
	assert.False(t, sel.Matches(map[string]string{"tier": "bronze"}))
	assert.False(t, sel.Matches(map[string]string{}))
}

func TestSelector_NotIn(t *testing.T) {
	sel, err := ParseSelector("tier notin (gold, silver)")
	require.NoError(t, err)

	assert.False(t, sel.Matches(map[string]string{"tier": "gold"}))
	assert.True(t, sel.Matches(map[string]string{"tier": "bronze"}))
	assert.True(t, sel.Matches(map[string]string{}))
}

func TestSelector_ExistsMatchesAnyValueIncludingEmpty(t *testing.T) {
	sel, err := ParseSelector("owner")
	require.NoError(t, err)

	assert.True(t, sel.Matches(map[string]string{"owner": ""}))
	assert.True(t, sel.Matches(map[string]string{"owner": "alice"}))
	assert.False(t, sel.Matches(map[string]string{}))
}

func TestSelector_NotExists(t *testing.T) {
	sel, err := ParseSelector("!deprecated")
	require.NoError(t, err)

	assert.True(t, sel.Matches(map[string]string{}))
	assert.False(t, sel.Matches(map[string]string{"deprecated": "true"}))
}

func TestSelector_MultipleRequirementsConjoin(t *testing.T) {
	sel, err := ParseSelector("region=eu,tier in (gold,silver),!deprecated")
	require.NoError(t, err)

	assert.True(t, sel.Matches(map[string]string{"region": "eu", "tier": "gold"}))
	assert.False(t, sel.Matches(map[string]string{"region": "us", "tier": "gold"}))
	assert.False(t, sel.Matches(map[string]string{"region": "eu", "tier": "gold", "deprecated": "true"}))
}

func TestSelector_Empty(t *testing.T) {
	sel, err := ParseSelector("")
	require.NoError(t, err)
	assert.True(t, sel.Matches(map[string]string{"anything": "goes"}))
}
