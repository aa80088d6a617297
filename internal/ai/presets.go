package ai

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderOllama:
		return "llama3:latest"
	default:
		return "openai/gpt-4o-mini"
	}
}

// RecommendModel returns a recommended model name for a given tier and provider.
// If provider is empty, defaults to "openrouter". Tiers: cheap|balanced|high-context.
func RecommendModel(provider, tier string) (string, bool) {
	if provider == "" {
		provider = ProviderOpenRouter
	}
	type key struct{ provider, tier string }
	picks := map[key]string{
		{ProviderOpenRouter, "cheap"}:        "deepseek/deepseek-r1:free",
		{ProviderOpenRouter, "balanced"}:     "openai/gpt-4o",
		{ProviderOpenRouter, "high-context"}: "openai/gpt-4.1-mini",
		{ProviderOpenAI, "cheap"}:            "gpt-4o-mini",
		{ProviderOpenAI, "balanced"}:         "gpt-4o",
		{ProviderOpenAI, "high-context"}:     "gpt-4o",
		{ProviderAnthropic, "cheap"}:         "claude-3-5-haiku-latest",
		{ProviderAnthropic, "balanced"}:      "claude-3-5-sonnet-latest",
		{ProviderAnthropic, "high-context"}:  "claude-3-5-sonnet-latest",
		{ProviderOllama, "cheap"}:            "llama3:latest",
		{ProviderOllama, "balanced"}:         "llama3.1:8b",
		{ProviderOllama, "high-context"}:     "llama3.1:8b",
	}
	name, ok := picks[key{provider, tier}]
	return name, ok
}
