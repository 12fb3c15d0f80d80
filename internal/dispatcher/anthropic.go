// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/goccy/go-json"

	"github.com/cascadehq/cascade-engine/internal/metadata"
)

// AnthropicProvider implements ModelProvider and Agent over
// github.com/anthropics/anthropic-sdk-go, the one concrete model backend
// the server binary can wire out of the box. Any other provider plugs in
// through the same two interfaces.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider constructs a provider bound to apiKey. model
// defaults to Claude Sonnet, the mid-tier model, since generative tier
// calls carry real workloads, unlike classification.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaudeSonnet4_5
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
	}
}

// Complete performs the generative tier's single model call: system and
// user prompt, input appended as JSON, output parsed as JSON when an
// output schema is declared.
func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, outputSchema map[string]any, input map[string]any) (map[string]any, error) {
	prompt := userPrompt
	if len(input) > 0 {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("cascade: encode generative input: %w", err)
		}
		prompt += "\n\nInput:\n" + string(data)
	}
	if len(outputSchema) > 0 {
		data, _ := json.Marshal(outputSchema)
		prompt += "\n\nRespond with a single JSON object matching this schema:\n" + string(data)
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("cascade: anthropic complete: %w", err)
	}

	text := collectText(msg)
	if len(outputSchema) > 0 {
		var out map[string]any
		if err := json.Unmarshal([]byte(extractJSON(text)), &out); err == nil {
			return out, nil
		}
	}
	return map[string]any{"text": text}, nil
}

// Step implements the agentic tier's one-turn contract. The provider keeps
// no state between turns; accumulated history rides in the prompt so the
// executor stays the sole owner of the step/token budget.
func (p *AnthropicProvider) Step(ctx context.Context, fn metadata.Function, input map[string]any, history []Step) (Step, error) {
	var prompt strings.Builder
	if fn.Goal != "" {
		prompt.WriteString("Goal: " + fn.Goal + "\n")
	}
	if fn.UserPrompt != "" {
		prompt.WriteString(fn.UserPrompt + "\n")
	}
	if len(input) > 0 {
		data, _ := json.Marshal(input)
		prompt.WriteString("Input:\n" + string(data) + "\n")
	}
	for i, s := range history {
		prompt.WriteString(fmt.Sprintf("Step %d:\n%s\n", i+1, s.Text))
	}
	prompt.WriteString("\nIf the goal is achieved, respond with DONE followed by a JSON object; otherwise describe the next step.")

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.String())),
		},
	}
	if fn.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: fn.SystemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Step{}, fmt.Errorf("cascade: anthropic agent step: %w", err)
	}

	text := collectText(msg)
	if rest, done := strings.CutPrefix(strings.TrimSpace(text), "DONE"); done {
		var out map[string]any
		if err := json.Unmarshal([]byte(extractJSON(rest)), &out); err != nil {
			out = map[string]any{"text": strings.TrimSpace(rest)}
		}
		return Step{Done: true, Output: out, Text: text}, nil
	}
	return Step{Text: text}, nil
}

func collectText(msg *anthropic.Message) string {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

// extractJSON trims any prose surrounding the first top-level JSON object
// in s; models occasionally wrap JSON in explanation despite instructions.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
