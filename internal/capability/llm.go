package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"

	"github.com/erentorlak/todv2/internal/api"
	"github.com/erentorlak/todv2/internal/catalog"
)

// generalIntent is the label the model uses for "none of the above".
const generalIntent = "general"

// LLMClassifier asks a language model for the intent label. Answers are
// cached per (utterance, intent set) since the same utterance is often
// classified more than once across sessions.
type LLMClassifier struct {
	llm   api.Completer
	cache *lru.Cache[string, string]
}

// NewLLMClassifier creates a classifier. cacheSize <= 0 disables the cache.
func NewLLMClassifier(llm api.Completer, cacheSize int) *LLMClassifier {
	c := &LLMClassifier{llm: llm}
	if cacheSize > 0 {
		// lru.New only errors on non-positive size which we guard above.
		c.cache, _ = lru.New[string, string](cacheSize)
	}
	return c
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, utterance string, intents []catalog.IntentSpec) (string, error) {
	key := cacheKey(utterance, intents)
	if c.cache != nil {
		if label, ok := c.cache.Get(key); ok {
			return label, nil
		}
	}

	var lines []string
	valid := make(map[string]bool, len(intents))
	for _, in := range intents {
		lines = append(lines, fmt.Sprintf("- %s: %s", in.Name, in.DisplayName()))
		valid[in.Name] = true
	}

	system := fmt.Sprintf(`You are an intent detection specialist. Analyze the user's message and detect their primary intent.

Available intents:
%s
- %s: General conversation, questions, or unclear intent

Respond with ONLY the intent name from the list above, or '%s' if unclear.`,
		strings.Join(lines, "\n"), generalIntent, generalIntent)
	prompt := fmt.Sprintf("User message: '%s'\n\nWhat is the user's intent?", utterance)

	out, err := c.llm.Complete(ctx, api.Request{Role: api.RoleSupervisor, System: system, Prompt: prompt})
	if err != nil {
		return "", err
	}

	label := strings.Trim(strings.ToLower(strings.TrimSpace(out)), "'\".`")
	if !valid[label] {
		label = ""
	}
	if c.cache != nil {
		c.cache.Add(key, label)
	}
	return label, nil
}

func cacheKey(utterance string, intents []catalog.IntentSpec) string {
	names := make([]string, len(intents))
	for i, in := range intents {
		names[i] = in.Name
	}
	sort.Strings(names)
	return strings.Join(names, ",") + "|" + strings.ToLower(strings.TrimSpace(utterance))
}

// LLMExtractor asks a language model for a JSON object of parameter values.
type LLMExtractor struct {
	llm api.Completer
}

// NewLLMExtractor creates an extractor.
func NewLLMExtractor(llm api.Completer) *LLMExtractor {
	return &LLMExtractor{llm: llm}
}

// Extract implements Extractor. Malformed JSON is repaired when possible;
// otherwise the error is returned and the caller treats it as nothing found.
func (e *LLMExtractor) Extract(ctx context.Context, utterance string, intent catalog.IntentSpec, missing []string) (map[string]string, error) {
	var defs []string
	for _, p := range intent.Parameters {
		desc := p.Description
		if desc == "" {
			desc = p.Name
		}
		defs = append(defs, fmt.Sprintf("- %s: %s (%s)", p.Name, desc, p.Type.Describe()))
	}

	system := fmt.Sprintf(`You are a parameter extraction specialist. Extract specific parameters from user input for slot filling.

Current Intent: %s
Still Need: %s

Parameter Definitions:
%s

Extract ONLY the parameters that are mentioned in the user input. Do not make assumptions.

Respond with a JSON object containing only the extracted parameters:
{"parameter_name": "extracted_value"}

If no parameters are found, return: {}`, intent.Name, strings.Join(missing, ", "), strings.Join(defs, "\n"))
	prompt := fmt.Sprintf("User input: %q\n\nExtract any parameters mentioned in this input that we still need for the %s intent.\nFocus on these missing parameters: %s",
		utterance, intent.Name, strings.Join(missing, ", "))

	out, err := e.llm.Complete(ctx, api.Request{Role: api.RoleInputParameter, System: system, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	return DecodeParameters(out)
}

// DecodeParameters parses a model's JSON answer into string values. Code
// fences are stripped and broken JSON goes through jsonrepair first.
func DecodeParameters(raw string) (map[string]string, error) {
	content := strings.TrimSpace(raw)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return map[string]string{}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(content)
		if repairErr != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &obj); err != nil {
			return nil, fmt.Errorf("decode repaired parameters: %w", err)
		}
		log.Printf("[capability] repaired malformed extraction JSON")
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// LLMGenerator writes replies with a language model.
type LLMGenerator struct {
	llm api.Completer
}

// NewLLMGenerator creates a generator.
func NewLLMGenerator(llm api.Completer) *LLMGenerator {
	return &LLMGenerator{llm: llm}
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var system, prompt string
	intentName := strings.ReplaceAll(req.Intent.Name, "_", " ")

	switch req.Kind {
	case KindSummary:
		results, _ := json.Marshal(req.Results)
		system = `You are a helpful assistant that summarizes task completion results.

Guidelines:
- Be conversational and friendly
- If successful: Confirm what was accomplished with key details
- If errors: Explain what went wrong and suggest retry
- Keep response concise but informative`
		prompt = fmt.Sprintf("User Intent: %s\nParameters: %v\nTool Results: %s\n\nGenerate a helpful response summarizing the results.",
			intentName, req.Parameters, results)
	case KindAcknowledgment:
		system = `You are a helpful assistant that acknowledges user requests.

Guidelines:
- Acknowledge what the user is trying to do
- Explain what will happen next
- Be encouraging and helpful`
		prompt = fmt.Sprintf("User Intent: %s\nExtracted Parameters: %v\n\nPlease generate a helpful acknowledgment of what the user wants to do.",
			intentName, req.Parameters)
	default:
		var lines []string
		for _, in := range req.Intents {
			lines = append(lines, "- "+in.DisplayName())
		}
		system = "You are a friendly travel assistant. Greet the user briefly and tell them what you can help with."
		prompt = "You can help with:\n" + strings.Join(lines, "\n")
	}

	out, err := g.llm.Complete(ctx, api.Request{Role: api.RoleGeneration, System: system, Prompt: prompt})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("empty generation for %s", req.Kind)
	}
	return out, nil
}
