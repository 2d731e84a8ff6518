// Package registry implements the model registry and shared model state
// (C6): candidate selection, fixed-window rate limiting, and the
// error/restore state machine, all backed by the storage capability so
// every process in a deployment observes the same state.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProviderId identifies one of the registered LLM providers. The set is
// closed in configuration but extensible by the registry that wires
// provider adapters at startup.
type ProviderId string

const (
	ProviderOpenAI   ProviderId = "openai"
	ProviderDeepSeek ProviderId = "deepseek"
	ProviderGemini   ProviderId = "gemini"
)

// RateLimits is the {max, windowMs} shape shared by ModelLimits and
// ModelState's live counter.
type RateLimits struct {
	Max      uint64 `json:"max"`
	WindowMs uint64 `json:"windowMs"`
}

// ModelLimits overrides the engine-wide defaults for one model.
type ModelLimits struct {
	MaxTokens *int       `json:"maxTokens,omitempty"`
	Rate      RateLimits `json:"rate"`
}

// ModelRestore holds the per-error-class restore durations, in ms.
type ModelRestore struct {
	RateLimit                 uint64 `json:"rateLimit"`
	Retry                      uint64 `json:"retry"`
	Timeout                    uint64 `json:"timeout"`
	ProviderCommunicationError uint64 `json:"providerCommunicationError"`
	ProviderExceededError      uint64 `json:"providerExceededError"`
}

// ModelRef names one model, optionally carrying per-model overrides. It
// accepts both the compact string form "<provider>:<name>" and the
// structured object form on JSON input; both normalize to this type.
type ModelRef struct {
	Provider ProviderId    `json:"provider"`
	Name     string        `json:"name"`
	Limits   *ModelLimits  `json:"limits,omitempty"`
	Restore  *ModelRestore `json:"restore,omitempty"`
}

// Key is the equality key for a ModelRef: (provider, name).
func (r ModelRef) Key() string {
	return string(r.Provider) + ":" + r.Name
}

func (r ModelRef) String() string {
	return r.Key()
}

// UnmarshalJSON accepts either a bare "<provider>:<name>" string or the
// structured {provider,name,limits?,restore?} object.
func (r *ModelRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseModelRefString(s)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}

	type alias ModelRef
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("registry: invalid model ref: %w", err)
	}
	*r = ModelRef(a)
	return nil
}

// ParseModelRefString parses the compact "<provider>:<name>" form.
func ParseModelRefString(s string) (ModelRef, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ModelRef{}, fmt.Errorf("registry: invalid model ref %q, want \"<provider>:<name>\"", s)
	}
	return ModelRef{Provider: ProviderId(parts[0]), Name: parts[1]}, nil
}
