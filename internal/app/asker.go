package app

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ragworkbench/internal/ai"
	"ragworkbench/internal/config"
	"ragworkbench/internal/session"
)

const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"

	citationInstruction = "Cite the passages you rely on with bracketed numeric markers such as [1] or [2]. If no passage supports the answer, say so and use no markers."
)

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// NewAsker picks the answer backend configured by llm.provider.
func NewAsker(cfg config.LLMConfig) (session.Asker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderMock:
		return StaticAsker{}, nil
	case ProviderOpenAI:
		return NewLLMAsker(ai.NewOpenAICompatibleClient(0), ai.ChatConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, Pricing{InputUSDPer1K: cfg.InputUSDPer1K, OutputUSDPer1K: cfg.OutputUSDPer1K})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrLLMConfig, cfg.Provider)
	}
}

// Pricing converts token usage into USD.
type Pricing struct {
	InputUSDPer1K  float64
	OutputUSDPer1K float64
}

func (p Pricing) Cost(u ai.Usage) float64 {
	cost := float64(u.PromptTokens)/1000*p.InputUSDPer1K + float64(u.CompletionTokens)/1000*p.OutputUSDPer1K
	if cost < 0 {
		return 0
	}
	return cost
}

// LLMAsker answers through an OpenAI-compatible chat completion endpoint.
type LLMAsker struct {
	client  *ai.OpenAICompatibleClient
	cfg     ai.ChatConfig
	pricing Pricing
}

func NewLLMAsker(client *ai.OpenAICompatibleClient, cfg ai.ChatConfig, pricing Pricing) (*LLMAsker, error) {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return nil, ErrLLMConfig
	}
	return &LLMAsker{client: client, cfg: cfg, pricing: pricing}, nil
}

func (a *LLMAsker) Ask(ctx context.Context, text string, persona session.Persona) (session.Answer, error) {
	messages := []ai.ChatMessage{
		{Role: "system", Content: systemPrompt(persona)},
		{Role: "system", Content: citationInstruction},
		{Role: "user", Content: strings.TrimSpace(text)},
	}

	start := time.Now()
	out, err := a.client.Complete(ctx, a.cfg, messages)
	if err != nil {
		return session.Answer{}, err
	}
	latency := time.Since(start).Milliseconds()

	content := strings.TrimSpace(out.Content)
	return session.Answer{
		Content:     content,
		CitationIDs: ExtractCitations(content),
		CostUSD:     a.pricing.Cost(out.Usage),
		LatencyMs:   latency,
	}, nil
}

func systemPrompt(persona session.Persona) string {
	if persona == session.PersonaSarcastic {
		return "You are a highly knowledgeable but sarcastic assistant. " +
			"You answer technical questions accurately, but with dry humor and sharp wit. " +
			"Always prioritize correctness over jokes."
	}
	return "You are an extremely technical assistant that explains concepts with precision. " +
		"Use rigorous terminology, reference algorithms and data structures when relevant, " +
		"and keep answers concise but deeply informative."
}

// ExtractCitations returns the distinct [n] markers of an answer in order of
// first appearance.
func ExtractCitations(content string) []string {
	matches := citationMarker.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}

// StaticAsker returns canned answers; it stands in for the generation
// backend in local runs.
type StaticAsker struct{}

func (StaticAsker) Ask(_ context.Context, _ string, persona session.Persona) (session.Answer, error) {
	content := "Sample highly technical answer with citation [1]."
	if persona == session.PersonaSarcastic {
		content = "Sample sarcastic answer with citation [1]."
	}
	return session.Answer{
		Content:     content,
		CitationIDs: []string{"1"},
		CostUSD:     0.01,
		LatencyMs:   1500,
	}, nil
}
