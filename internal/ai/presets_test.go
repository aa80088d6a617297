package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecommendModel(t *testing.T) {
	name, ok := RecommendModel("", "cheap")
	assert.True(t, ok)
	assert.Equal(t, "deepseek/deepseek-r1:free", name)

	name, ok = RecommendModel(ProviderAnthropic, "balanced")
	assert.True(t, ok)
	assert.Equal(t, "claude-3-5-sonnet-latest", name)

	_, ok = RecommendModel(ProviderOpenAI, "unknown")
	assert.False(t, ok)
}

func TestDefaultModelsAreCatalogued(t *testing.T) {
	for _, p := range Providers() {
		_, ok := LookupModelFor(p, DefaultModel(p))
		assert.True(t, ok, p)
	}
}

func TestLookupModelFor(t *testing.T) {
	mi, ok := LookupModelFor(ProviderAnthropic, "claude-3.5-sonnet")
	assert.True(t, ok)
	assert.Equal(t, 200000, mi.ContextTokens)

	_, ok = LookupModelFor(ProviderOpenAI, "nope")
	assert.False(t, ok)
}
