package config

import "fmt"

// EmbeddingConfig configures the optional embedding engine behind
// similar-pattern search. An empty provider leaves search disabled.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // ollama, genai, or empty

	// Ollama configuration
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	// GenAI configuration
	GenAIAPIKey string `yaml:"genai_api_key,omitempty"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type"`
}

// DefaultEmbeddingConfig returns embedding defaults with search disabled.
// Endpoints and models are prefilled so enabling a provider is one line.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:       "",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
		TaskType:       "SEMANTIC_SIMILARITY",
	}
}

// ValidEmbeddingProviders lists the supported embedding providers. Empty
// disables similar-pattern search.
var ValidEmbeddingProviders = []string{"", "ollama", "genai"}

// ValidateEmbedding checks the embedding provider selection.
func (c *Config) ValidateEmbedding() error {
	validProvider := false
	for _, p := range ValidEmbeddingProviders {
		if c.Embedding.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid embedding provider: %s (valid: ollama, genai, or empty to disable)", c.Embedding.Provider)
	}

	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("genai embedding provider needs an API key (set GEMINI_API_KEY or embedding.genai_api_key)")
	}

	return nil
}
