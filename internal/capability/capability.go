// Package capability defines the language-understanding services the dialog
// engine consumes: intent classification, parameter extraction and response
// generation. The engine depends only on the interfaces; implementations are
// injected at construction.
package capability

import (
	"context"

	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/pkg/models"
)

// Classifier maps an utterance to one of the available intents.
// It returns "" when no intent applies.
type Classifier interface {
	Classify(ctx context.Context, utterance string, intents []catalog.IntentSpec) (string, error)
}

// Extractor pulls parameter values out of free text. Keys outside missing
// may be returned; callers discard them.
type Extractor interface {
	Extract(ctx context.Context, utterance string, intent catalog.IntentSpec, missing []string) (map[string]string, error)
}

// Kind is the purpose of a generated response.
type Kind string

const (
	KindSummary        Kind = "summary"
	KindAcknowledgment Kind = "acknowledgment"
	KindIdle           Kind = "idle"
)

// GenerateRequest carries everything a generator may describe.
type GenerateRequest struct {
	Kind       Kind
	Intent     catalog.IntentSpec
	Parameters map[string]string
	Results    map[string]models.ToolResult
	// Intents lists the catalogue for idle help text.
	Intents []catalog.IntentSpec
}

// Generator writes one assistant utterance.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, utterance string, intents []catalog.IntentSpec) (string, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, utterance string, intents []catalog.IntentSpec) (string, error) {
	return f(ctx, utterance, intents)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, utterance string, intent catalog.IntentSpec, missing []string) (map[string]string, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, utterance string, intent catalog.IntentSpec, missing []string) (map[string]string, error) {
	return f(ctx, utterance, intent, missing)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// Set bundles the three capabilities handed to the engine.
type Set struct {
	Classifier Classifier
	Extractor  Extractor
	Generator  Generator
}
