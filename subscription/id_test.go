package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIDScenarioFormat(t *testing.T) {
	id := DeriveID("film", map[string]any{"id": "abc"})
	assert.Equal(t, "film:{id : abc,}", id)
}

func TestDeriveIDNoVariables(t *testing.T) {
	assert.Equal(t, "allFilms", DeriveID("allFilms", nil))
	assert.Equal(t, "allFilms", DeriveID("allFilms", map[string]any{}))
}

func TestDeriveIDDeterministic(t *testing.T) {
	vars := map[string]any{"id": "abc", "limit": 10, "after": "cursor-1"}

	first := DeriveID("films", vars)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, DeriveID("films", vars))
	}
}

func TestDeriveIDOrderStable(t *testing.T) {
	// Same bindings built in different insertion orders render identically
	a := map[string]any{}
	a["zeta"] = 1
	a["alpha"] = 2
	a["mid"] = 3

	b := map[string]any{}
	b["mid"] = 3
	b["alpha"] = 2
	b["zeta"] = 1

	assert.Equal(t, DeriveID("op", a), DeriveID("op", b))
	assert.Equal(t, "op:{alpha : 2,mid : 3,zeta : 1,}", DeriveID("op", a))
}

func TestDeriveIDDistinguishesBindings(t *testing.T) {
	assert.NotEqual(t,
		DeriveID("film", map[string]any{"id": "abc"}),
		DeriveID("film", map[string]any{"id": "xyz"}))
	assert.NotEqual(t,
		DeriveID("film", map[string]any{"id": "abc"}),
		DeriveID("planet", map[string]any{"id": "abc"}))
}

func TestDeriveIDMixedValueTypes(t *testing.T) {
	id := DeriveID("search", map[string]any{"limit": 5, "exact": true, "term": "hope"})
	assert.Equal(t, "search:{exact : true,limit : 5,term : hope,}", id)
}
