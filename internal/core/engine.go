package core

// Engine identifies a model hosted by the API. The id is the path segment in
// /engines/{id}/... requests.
type Engine interface {
	String() string
	IsCompletion() bool
	IsTranslation() bool
}

// CompletionEngine is a language model usable for completions, chat, logprob
// and tokenize calls.
type CompletionEngine string

// TranslationEngine is a model usable for translate and tokenize calls.
type TranslationEngine string

const (
	GPTJ6B        CompletionEngine = "gptj_6B"
	Boris6B       CompletionEngine = "boris_6B"
	FairseqGPT13B CompletionEngine = "fairseq_gpt_13B"
	GPTNeoX20B    CompletionEngine = "gptneox_20B"

	M2M100_1_2B TranslationEngine = "m2m100_1_2B"
)

func (e CompletionEngine) String() string      { return string(e) }
func (e CompletionEngine) IsCompletion() bool  { return true }
func (e CompletionEngine) IsTranslation() bool { return false }

func (e TranslationEngine) String() string      { return string(e) }
func (e TranslationEngine) IsCompletion() bool  { return false }
func (e TranslationEngine) IsTranslation() bool { return true }

// EngineInfo describes a catalogue entry.
type EngineInfo struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	// MaxContext is the prompt + generation token limit, 0 when not applicable
	MaxContext int `json:"max_context,omitempty"`
}

var knownEngines = []EngineInfo{
	{ID: string(GPTJ6B), Kind: "completion", MaxContext: 2048,
		Description: "6B parameter model trained on the Pile; English first, several other natural and programming languages"},
	{ID: string(Boris6B), Kind: "completion", MaxContext: 1024,
		Description: "GPT-J fine tuned for French"},
	{ID: string(FairseqGPT13B), Kind: "completion", MaxContext: 1024,
		Description: "13B parameter English model"},
	{ID: string(GPTNeoX20B), Kind: "completion", MaxContext: 1024,
		Description: "20B parameter English model trained on the Pile"},
	{ID: string(M2M100_1_2B), Kind: "translation",
		Description: "1.2B parameter translation model covering 100 languages"},
}

// KnownEngines returns the engine catalogue.
func KnownEngines() []EngineInfo {
	out := make([]EngineInfo, len(knownEngines))
	copy(out, knownEngines)
	return out
}

// LookupEngine resolves an engine id. Ids outside the catalogue are treated as
// completion engines so newly hosted models work without a client release.
func LookupEngine(id string) Engine {
	for _, info := range knownEngines {
		if info.ID == id && info.Kind == "translation" {
			return TranslationEngine(id)
		}
	}
	return CompletionEngine(id)
}
