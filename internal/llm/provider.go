package llm

import (
	"fmt"
	"strings"
)

type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderPerplexity Provider = "perplexity"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGemini     Provider = "gemini"
)

// Tier is a model-quality alias resolved per provider.
type Tier string

const (
	TierDefault Tier = "default"
	TierFast    Tier = "fast"
	TierSmart   Tier = "smart"
)

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TierDefault, nil
	case TierDefault, TierFast, TierSmart:
		return t, nil
	default:
		return "", fmt.Errorf("unknown model tier %q", s)
	}
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[p]; !ok {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// backend is the closed set of provider variants.
type backend interface {
	isBackend()
}

// openAICompatible speaks the chat-completions wire format at baseURL.
type openAICompatible struct {
	baseURL string
}

// unimplemented providers fail every call with reason.
type unimplemented struct {
	reason string
}

func (openAICompatible) isBackend() {}
func (unimplemented) isBackend()    {}

type providerEntry struct {
	backend backend
	models  map[Tier]string
}

var registry = map[Provider]providerEntry{
	ProviderOpenAI: {
		backend: openAICompatible{baseURL: "https://api.openai.com/v1"},
		models: map[Tier]string{
			TierDefault: "gpt-4o",
			TierFast:    "gpt-4o-mini",
			TierSmart:   "gpt-4.1",
		},
	},
	ProviderPerplexity: {
		backend: openAICompatible{baseURL: "https://api.perplexity.ai"},
		models: map[Tier]string{
			TierDefault: "sonar",
			TierFast:    "sonar",
			TierSmart:   "sonar-pro",
		},
	},
	ProviderDeepSeek: {
		backend: openAICompatible{baseURL: "https://api.deepseek.com/v1"},
		models: map[Tier]string{
			TierDefault: "deepseek-chat",
			TierFast:    "deepseek-chat",
			TierSmart:   "deepseek-reasoner",
		},
	},
	ProviderAnthropic: {
		backend: unimplemented{reason: "anthropic provider not implemented"},
		models: map[Tier]string{
			TierDefault: "claude-3-5-sonnet-latest",
			TierFast:    "claude-3-5-haiku-latest",
			TierSmart:   "claude-3-opus-latest",
		},
	},
	ProviderGemini: {
		backend: unimplemented{reason: "gemini provider not implemented"},
		models: map[Tier]string{
			TierDefault: "gemini-1.5-pro",
			TierFast:    "gemini-1.5-flash",
			TierSmart:   "gemini-1.5-pro",
		},
	},
}

// KnownProviders lists every registered provider in a stable order.
func KnownProviders() []Provider {
	return []Provider{
		ProviderOpenAI,
		ProviderPerplexity,
		ProviderDeepSeek,
		ProviderAnthropic,
		ProviderGemini,
	}
}

// ResolveModel maps a tier to the provider's concrete model name.
func ResolveModel(p Provider, tier Tier) (string, error) {
	entry, ok := registry[p]
	if !ok {
		return "", &ConfigurationError{Provider: p, Reason: "unknown provider"}
	}
	model, ok := entry.models[tier]
	if !ok {
		return "", &ConfigurationError{Provider: p, Reason: fmt.Sprintf("unknown tier %q", tier)}
	}
	return model, nil
}
