package llm

import "fmt"

// ConfigurationError means a call was refused before any network attempt.
type ConfigurationError struct {
	Provider Provider
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("llm configuration: %s: %s", e.Provider, e.Reason)
}

// ProviderError is a failed attempt against a single provider.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm provider %s: http %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm provider %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FailoverExhaustedError is returned when no candidate provider succeeded.
type FailoverExhaustedError struct {
	Attempted []Provider
	Last      error
}

func (e *FailoverExhaustedError) Error() string {
	return fmt.Sprintf("all llm providers failed (attempted %v): %v", e.Attempted, e.Last)
}

func (e *FailoverExhaustedError) Unwrap() error {
	return e.Last
}
