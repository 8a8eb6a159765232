package orchestrator

import (
	"github.com/erentorlak/todv2/internal/capability"
	"github.com/erentorlak/todv2/internal/catalog"
	"github.com/erentorlak/todv2/internal/executor"
	"github.com/erentorlak/todv2/internal/state"
)

// RequiredConfig contains the minimal required configuration for an Engine.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Catalog describes intents and tools. A *catalog.Live may be passed
	// to pick up reloads between turns.
	Catalog catalog.Describer
	// Tools dispatches tool calls by name.
	Tools executor.Invoker
	// Store persists sessions between turns.
	Store state.SessionStore
}

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

// engineOptions holds all optional configuration.
type engineOptions struct {
	classifier  capability.Classifier
	extractor   capability.Extractor
	generator   capability.Generator
	maxRetries  int
	maxParallel int
	maxHops     int
	metrics     *Metrics
	logger      *DebugLogger
	emitter     *EventEmitter
	newID       func() string
}

// WithCapabilities sets all three language capabilities at once.
func WithCapabilities(set capability.Set) Option {
	return func(o *engineOptions) {
		o.classifier = set.Classifier
		o.extractor = set.Extractor
		o.generator = set.Generator
	}
}

// WithClassifier sets the model-backed classifier consulted after keyword matching.
func WithClassifier(c capability.Classifier) Option {
	return func(o *engineOptions) { o.classifier = c }
}

// WithExtractor sets the parameter extractor.
func WithExtractor(e capability.Extractor) Option {
	return func(o *engineOptions) { o.extractor = e }
}

// WithGenerator sets the response generator.
func WithGenerator(g capability.Generator) Option {
	return func(o *engineOptions) { o.generator = g }
}

// WithMaxRetries sets the per-parameter clarification ceiling.
func WithMaxRetries(n int) Option {
	return func(o *engineOptions) { o.maxRetries = n }
}

// WithMaxParallel bounds concurrent tool calls within a batch.
func WithMaxParallel(n int) Option {
	return func(o *engineOptions) { o.maxParallel = n }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithEventEmitter publishes engine events. Without one, events are dropped.
func WithEventEmitter(e *EventEmitter) Option {
	return func(o *engineOptions) { o.emitter = e }
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *engineOptions) { o.newID = fn }
}
