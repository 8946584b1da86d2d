package models

import "strings"

// DefaultMaxTokens is the completion budget used when a backend does not set one
const DefaultMaxTokens = 1000

// Backend describes one remote inference backend
type Backend struct {
	Key       string `json:"key"                mapstructure:"key"`
	Model     string `json:"model"              mapstructure:"model"`
	Endpoint  string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	MaxTokens int    `json:"max_tokens"         mapstructure:"max_tokens"`
}

// Catalog is the default backend set: two Llama 4 vision models served by Groq
var Catalog = []Backend{
	{
		Key:       "llama",
		Model:     "meta-llama/llama-4-scout-17b-16e-instruct",
		MaxTokens: DefaultMaxTokens,
	},
	{
		Key:       "llava",
		Model:     "meta-llama/llama-4-maverick-17b-128e-instruct",
		MaxTokens: DefaultMaxTokens,
	},
}

// DefaultBackends returns a copy of the catalog so callers can't mutate it
func DefaultBackends() []Backend {
	out := make([]Backend, len(Catalog))
	copy(out, Catalog)
	return out
}

// Resolve fills in the endpoint and token limit of b from the shared base URL
func Resolve(b Backend, baseURL string) Backend {
	if b.Endpoint == "" {
		b.Endpoint = ChatCompletionsURL(baseURL)
	}
	if b.MaxTokens <= 0 {
		b.MaxTokens = DefaultMaxTokens
	}
	return b
}

// ChatCompletionsURL appends the chat completions path to an OpenAI-compatible base URL
func ChatCompletionsURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/chat/completions"
}

// Find looks a backend up by key
func Find(backends []Backend, key string) (Backend, bool) {
	for _, b := range backends {
		if b.Key == key {
			return b, true
		}
	}
	return Backend{}, false
}

// Keys returns the backend keys in configuration order
func Keys(backends []Backend) []string {
	keys := make([]string, 0, len(backends))
	for _, b := range backends {
		keys = append(keys, b.Key)
	}
	return keys
}
