package textsynth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/llmclient"
)

const (
	maxTranslateTexts = 64
	// AutoDetectLanguage lets the engine detect the source language.
	AutoDetectLanguage = "auto"
)

// TranslateRequest is a validated batch of texts to translate. Only
// TranslateRequestBuilder produces usable values.
type TranslateRequest struct {
	wire  translateWire
	built bool
}

type translateWire struct {
	Text           []string `json:"text"`
	SourceLang     string   `json:"source_lang"`
	TargetLang     string   `json:"target_lang"`
	NumBeams       *int     `json:"num_beams,omitempty"`
	SplitSentences *bool    `json:"split_sentences,omitempty"`
}

// Text returns a copy of the texts to translate.
func (r *TranslateRequest) Text() []string {
	return append([]string(nil), r.wire.Text...)
}

func (r *TranslateRequest) SourceLang() string { return r.wire.SourceLang }
func (r *TranslateRequest) TargetLang() string { return r.wire.TargetLang }

// NumBeams reports the beam count and whether it was set.
func (r *TranslateRequest) NumBeams() (int, bool) {
	if r.wire.NumBeams == nil {
		return 0, false
	}
	return *r.wire.NumBeams, true
}

func (r *TranslateRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire)
}

type TranslateRequestBuilder struct {
	text           []string
	sourceLang     *string
	targetLang     *string
	numBeams       *int
	splitSentences *bool
}

func NewTranslateRequestBuilder() *TranslateRequestBuilder {
	return &TranslateRequestBuilder{}
}

// Text sets the independent texts to translate, 1 to 64 of them.
func (b *TranslateRequestBuilder) Text(texts ...string) *TranslateRequestBuilder {
	b.text = append([]string(nil), texts...)
	return b
}

// SourceLang takes a 2 or 3 letter ISO code, or AutoDetectLanguage.
func (b *TranslateRequestBuilder) SourceLang(lang string) *TranslateRequestBuilder {
	b.sourceLang = &lang
	return b
}

// TargetLang takes a 2 or 3 letter ISO code.
func (b *TranslateRequestBuilder) TargetLang(lang string) *TranslateRequestBuilder {
	b.targetLang = &lang
	return b
}

// NumBeams trades cost for quality, 1 to 5.
func (b *TranslateRequestBuilder) NumBeams(n int) *TranslateRequestBuilder {
	b.numBeams = &n
	return b
}

// SplitSentences controls the automatic sentence splitting of each text.
func (b *TranslateRequestBuilder) SplitSentences(split bool) *TranslateRequestBuilder {
	b.splitSentences = &split
	return b
}

func (b *TranslateRequestBuilder) Build() (*TranslateRequest, error) {
	if b.text == nil {
		return nil, core.NewConfigurationError("translate: text is required")
	}
	if n := len(b.text); n < 1 || n > maxTranslateTexts {
		return nil, core.NewConfigurationErrorf("translate: text must have 1 to %d elements, got %d", maxTranslateTexts, n)
	}
	if b.sourceLang == nil {
		return nil, core.NewConfigurationError("translate: source_lang is required")
	}
	if !isLanguageCode(*b.sourceLang) && *b.sourceLang != AutoDetectLanguage {
		return nil, core.NewConfigurationErrorf("translate: source_lang %q must be a 2 or 3 letter ISO code or %q", *b.sourceLang, AutoDetectLanguage)
	}
	if b.targetLang == nil {
		return nil, core.NewConfigurationError("translate: target_lang is required")
	}
	if !isLanguageCode(*b.targetLang) {
		return nil, core.NewConfigurationErrorf("translate: target_lang %q must be a 2 or 3 letter ISO code", *b.targetLang)
	}
	if b.numBeams != nil && (*b.numBeams < 1 || *b.numBeams > 5) {
		return nil, core.NewConfigurationError("translate: num_beams must be between 1 and 5")
	}

	req := &TranslateRequest{built: true, wire: translateWire{
		Text:       append([]string(nil), b.text...),
		SourceLang: *b.sourceLang,
		TargetLang: *b.targetLang,
	}}
	if b.numBeams != nil {
		n := *b.numBeams
		req.wire.NumBeams = &n
	}
	if b.splitSentences != nil {
		split := *b.splitSentences
		req.wire.SplitSentences = &split
	}
	return req, nil
}

func isLanguageCode(lang string) bool {
	return len(lang) == 2 || len(lang) == 3
}

type Translation struct {
	Text string `json:"text"`
	// DetectedSourceLang equals the requested source language unless it was auto
	DetectedSourceLang string `json:"detected_source_lang"`
}

// TranslateResponse holds one translation per input text, in input order.
type TranslateResponse struct {
	Translations []Translation `json:"translations"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
}

// Translate translates a batch of texts with a translation engine.
func (c *Client) Translate(ctx context.Context, engine Engine, req *TranslateRequest) (*TranslateResponse, error) {
	if err := requireTranslationEngine(engine); err != nil {
		return nil, err
	}
	if err := requireBuilt(req == nil || !req.built, "translate"); err != nil {
		return nil, err
	}

	var resp TranslateResponse
	err := c.client.Do(ctx, llmclient.Request{
		Operation: "translate",
		Method:    http.MethodPost,
		Endpoint:  engineEndpoint(engine, "translate"),
		Body:      req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
