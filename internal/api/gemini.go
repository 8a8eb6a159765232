package api

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient calls Google's Gemini models.
type GeminiClient struct {
	client  *genai.Client
	model   string
	roles   map[Role]RoleSettings
	tracker *TokenTracker
}

var _ Completer = (*GeminiClient)(nil)

// GeminiConfig contains configuration for NewGeminiClient.
type GeminiConfig struct {
	Model string
	// APIKey is the Gemini API key. If empty, uses GOOGLE_API_KEY env var.
	APIKey string
	Roles  map[Role]RoleSettings
}

// NewGeminiClient creates a Gemini-backed Completer.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	roles := cfg.Roles
	if roles == nil {
		roles = DefaultRoles()
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		roles:   roles,
		tracker: NewTokenTracker(),
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *GeminiClient) Tracker() *TokenTracker {
	return c.tracker
}

// Complete implements Completer.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	s := settingsFor(c.roles, req.Role)

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(s.Temperature)),
		MaxOutputTokens: int32(s.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini %s call: %w", req.Role, err)
	}
	if resp.UsageMetadata != nil {
		c.tracker.Add(int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount))
	}
	return strings.TrimSpace(resp.Text()), nil
}
