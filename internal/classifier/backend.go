// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tiktoken-go/tokenizer"

	"github.com/cascadehq/cascade-engine/internal/tier"
)

// Backend is the pluggable model backend the classifier consults ahead of
// the deterministic heuristic: an external call returning a tier guess plus
// confidence, with no dependence on any one provider.
type Backend interface {
	Classify(ctx context.Context, req Request) (Decision, error)
}

// AnthropicBackend is an optional concrete Backend over
// github.com/anthropics/anthropic-sdk-go. It is never the only path:
// Classifier always has the deterministic Heuristic to fall back to.
type AnthropicBackend struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicBackend constructs a backend bound to apiKey. model defaults
// to Claude Haiku, the cheapest model in the family, since classification is
// a low-stakes, latency-sensitive call.
func NewAnthropicBackend(apiKey, model string) *AnthropicBackend {
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaudeHaiku4_5
	}
	return &AnthropicBackend{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
	}
}

const classificationPrompt = `Classify the following function for execution tier.
Tiers: code (deterministic, fast), generative (single model call), agentic (multi-step reasoning), human (requires a person).
Respond with exactly one line: "<tier> <confidence 0-1> <short reason>".

Function id: %s
Description: %s`

// Classify asks the model for a tier, confidence, and reasoning, parsing its
// single-line response. Any malformed response is treated as a backend
// error so the caller falls through to the heuristic.
func (b *AnthropicBackend) Classify(ctx context.Context, req Request) (Decision, error) {
	prompt := fmt.Sprintf(classificationPrompt, req.FunctionID, req.Description)

	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: 64,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("cascade: anthropic classify: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return parseClassificationLine(text.String())
}

func parseClassificationLine(line string) (Decision, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 {
		return Decision{}, fmt.Errorf("cascade: malformed classification response %q", line)
	}

	t := tier.Tier(strings.ToLower(fields[0]))
	if !tier.Valid(t) {
		return Decision{}, fmt.Errorf("cascade: unknown tier %q in classification response", fields[0])
	}

	var confidence float64
	if _, err := fmt.Sscanf(fields[1], "%f", &confidence); err != nil {
		return Decision{}, fmt.Errorf("cascade: malformed confidence in classification response %q", line)
	}

	reasoning := ""
	if len(fields) > 2 {
		reasoning = strings.Join(fields[2:], " ")
	}
	return Decision{Type: t, Confidence: confidence, Reasoning: reasoning}, nil
}

// TokenEstimator counts prompt tokens against the agentic tier's token
// budget via tiktoken-go/tokenizer.
type TokenEstimator struct {
	codec tokenizer.Codec
}

// NewTokenEstimator loads the cl100k_base encoding, the one GPT-3.5/4-era
// tokenizer shared across the examples that reference tiktoken by name.
func NewTokenEstimator() (*TokenEstimator, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("cascade: load tokenizer codec: %w", err)
	}
	return &TokenEstimator{codec: codec}, nil
}

// Count returns the number of tokens text would occupy in a model prompt.
func (t *TokenEstimator) Count(text string) (int, error) {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("cascade: tokenize: %w", err)
	}
	return len(ids), nil
}
