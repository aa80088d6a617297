package ai

import (
	"encoding/json"
	"os"
	"strings"
)

// ModelInfo carries the context window and illustrative pricing used for
// prompt-size checks and cost hints.
type ModelInfo struct {
	Name          string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

func model(name string, ctx int, in, out float64) ModelInfo {
	return ModelInfo{Name: name, ContextTokens: ctx, InputPerK: in, OutputPerK: out}
}

var models = catalogOf(
	model("deepseek/deepseek-r1:free", 128000, 0, 0),
	model("openai/gpt-4o-mini", 128000, 0.00015, 0.0006),
	model("openai/gpt-4o", 128000, 0.0025, 0.01),
	model("openai/gpt-4.1-mini", 1000000, 0.0004, 0.0016),
	model("anthropic/claude-3.5-haiku", 200000, 0.0008, 0.004),
	model("anthropic/claude-3.5-sonnet", 200000, 0.003, 0.015),
	model("meta-llama/llama-3.1-8b-instruct", 131072, 0, 0),
	// Direct provider APIs
	model("gpt-4o-mini", 128000, 0.00015, 0.0006),
	model("gpt-4o", 128000, 0.0025, 0.01),
	model("claude-3-5-haiku-latest", 200000, 0.0008, 0.004),
	model("claude-3-5-sonnet-latest", 200000, 0.003, 0.015),
	// Common local (Ollama) tags
	model("llama3:latest", 8192, 0, 0),
	model("llama3.1:8b", 131072, 0, 0),
	model("mistral:7b-instruct", 8192, 0, 0),
	model("phi3:mini-4k-instruct", 4096, 0, 0),
)

func catalogOf(infos ...ModelInfo) map[string]ModelInfo {
	out := make(map[string]ModelInfo, len(infos))
	for _, mi := range infos {
		out[mi.Name] = mi
	}
	return out
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// LookupModelFor resolves a model as named for a provider. Direct OpenAI and
// Anthropic names are also tried with the provider prefix OpenRouter uses.
func LookupModelFor(provider, name string) (ModelInfo, bool) {
	if mi, ok := LookupModel(name); ok {
		return mi, true
	}
	if provider != "" && !strings.Contains(name, "/") {
		return LookupModel(provider + "/" + name)
	}
	return ModelInfo{}, false
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example entry:
// { "gpt-4o-mini": {"Name":"gpt-4o-mini","ContextTokens":128000,"InputPerK":0.00015,"OutputPerK":0.0006} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns a shallow copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}
