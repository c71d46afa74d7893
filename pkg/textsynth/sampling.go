package textsynth

import (
	"github.com/elikoga/textsynth/internal/core"
)

// samplingParams are the generation controls shared by completions and chat.
// Unset fields are omitted so the API applies its own defaults.
type samplingParams struct {
	MaxTokens         *int               `json:"max_tokens,omitempty"`
	Stream            bool               `json:"stream,omitempty"`
	Stop              []string           `json:"stop,omitempty"`
	N                 *int               `json:"n,omitempty"`
	Temperature       *float64           `json:"temperature,omitempty"`
	TopK              *int               `json:"top_k,omitempty"`
	TopP              *float64           `json:"top_p,omitempty"`
	LogitBias         map[string]float64 `json:"logit_bias,omitempty"`
	PresencePenalty   *float64           `json:"presence_penalty,omitempty"`
	FrequencyPenalty  *float64           `json:"frequency_penalty,omitempty"`
	RepetitionPenalty *float64           `json:"repetition_penalty,omitempty"`
	TypicalP          *float64           `json:"typical_p,omitempty"`
}

const maxStopSequences = 5

func (p *samplingParams) validate(operation string) error {
	fail := func(format string, args ...any) error {
		return core.NewConfigurationErrorf(operation+": "+format, args...)
	}
	if p.MaxTokens != nil && *p.MaxTokens < 1 {
		return fail("max_tokens must be at least 1")
	}
	if p.N != nil && (*p.N < 1 || *p.N > 16) {
		return fail("n must be between 1 and 16")
	}
	if p.Temperature != nil && *p.Temperature < 0 {
		return fail("temperature must not be negative")
	}
	if p.TopK != nil && (*p.TopK < 1 || *p.TopK > 1000) {
		return fail("top_k must be between 1 and 1000")
	}
	if p.TopP != nil && (*p.TopP < 0 || *p.TopP > 1) {
		return fail("top_p must be between 0.0 and 1.0")
	}
	if p.PresencePenalty != nil && (*p.PresencePenalty < -2 || *p.PresencePenalty > 2) {
		return fail("presence_penalty must be between -2.0 and 2.0")
	}
	if p.FrequencyPenalty != nil && (*p.FrequencyPenalty < -2 || *p.FrequencyPenalty > 2) {
		return fail("frequency_penalty must be between -2.0 and 2.0")
	}
	if p.TypicalP != nil && (*p.TypicalP <= 0 || *p.TypicalP > 1) {
		return fail("typical_p must be greater than 0.0 and at most 1.0")
	}
	if len(p.Stop) > maxStopSequences {
		return fail("at most %d stop sequences are allowed, got %d", maxStopSequences, len(p.Stop))
	}
	for token, bias := range p.LogitBias {
		if bias < -100 || bias > 100 {
			return fail("logit_bias for token %s must be between -100 and 100", token)
		}
	}
	return nil
}

func (p samplingParams) clone() samplingParams {
	if p.Stop != nil {
		p.Stop = append([]string(nil), p.Stop...)
	}
	if p.LogitBias != nil {
		bias := make(map[string]float64, len(p.LogitBias))
		for k, v := range p.LogitBias {
			bias[k] = v
		}
		p.LogitBias = bias
	}
	return p
}

// sampling provides the shared setters to a request builder B.
// The embedding builder sets self so setters chain on B.
type sampling[B any] struct {
	self   B
	params samplingParams
}

// MaxTokens caps the generated tokens. Prompt plus output must fit the engine's context.
func (s *sampling[B]) MaxTokens(n int) B {
	s.params.MaxTokens = &n
	return s.self
}

// Stop ends generation at any of up to five strings; the stop string is not returned.
func (s *sampling[B]) Stop(stop ...string) B {
	s.params.Stop = append([]string(nil), stop...)
	return s.self
}

// N requests n independent completions (1 to 16).
func (s *sampling[B]) N(n int) B {
	s.params.N = &n
	return s.self
}

func (s *sampling[B]) Temperature(t float64) B {
	s.params.Temperature = &t
	return s.self
}

// TopK samples among the k most likely tokens (1 to 1000).
func (s *sampling[B]) TopK(k int) B {
	s.params.TopK = &k
	return s.self
}

// TopP is nucleus sampling (0 to 1); 1 disables it.
func (s *sampling[B]) TopP(p float64) B {
	s.params.TopP = &p
	return s.self
}

// LogitBias maps token indexes to a bias in [-100, 100]. Token indexes are
// engine specific; Tokenize returns them.
func (s *sampling[B]) LogitBias(bias map[string]float64) B {
	s.params.LogitBias = make(map[string]float64, len(bias))
	for k, v := range bias {
		s.params.LogitBias[k] = v
	}
	return s.self
}

func (s *sampling[B]) PresencePenalty(p float64) B {
	s.params.PresencePenalty = &p
	return s.self
}

func (s *sampling[B]) FrequencyPenalty(p float64) B {
	s.params.FrequencyPenalty = &p
	return s.self
}

// RepetitionPenalty divides the logits of already generated tokens; 1 disables it.
func (s *sampling[B]) RepetitionPenalty(p float64) B {
	s.params.RepetitionPenalty = &p
	return s.self
}

// TypicalP enables typical sampling, in (0, 1]; 1 disables it.
func (s *sampling[B]) TypicalP(p float64) B {
	s.params.TypicalP = &p
	return s.self
}
