package textsynth

import "github.com/elikoga/textsynth/internal/core"

type (
	Engine            = core.Engine
	CompletionEngine  = core.CompletionEngine
	TranslationEngine = core.TranslationEngine
	EngineInfo        = core.EngineInfo
)

const (
	GPTJ6B        = core.GPTJ6B
	Boris6B       = core.Boris6B
	FairseqGPT13B = core.FairseqGPT13B
	GPTNeoX20B    = core.GPTNeoX20B
	M2M100_1_2B   = core.M2M100_1_2B
)

// KnownEngines returns the engine catalogue.
func KnownEngines() []EngineInfo { return core.KnownEngines() }

// LookupEngine resolves an engine id; unknown ids are treated as completion engines.
func LookupEngine(id string) Engine { return core.LookupEngine(id) }

func requireCompletionEngine(engine Engine, operation string) error {
	if engine == nil || engine.String() == "" {
		return core.NewConfigurationErrorf("%s: engine is required", operation)
	}
	if !engine.IsCompletion() {
		return core.NewConfigurationErrorf("%s: %s is not a completion engine", operation, engine)
	}
	return nil
}

func requireTranslationEngine(engine Engine) error {
	if engine == nil || engine.String() == "" {
		return core.NewConfigurationError("translate: engine is required")
	}
	if !engine.IsTranslation() {
		return core.NewConfigurationErrorf("translate: %s is not a translation engine", engine)
	}
	return nil
}
