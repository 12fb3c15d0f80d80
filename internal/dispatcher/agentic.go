// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade-engine/internal/metadata"
)

// Step is one turn of the agentic loop: given the accumulated context, the
// agent either finishes (done=true, with output) or wants another turn
// (done=false, with the text to account for against the token budget).
type Step struct {
	Done   bool
	Output map[string]any
	Text   string
}

// Agent is the out-of-scope model-provider collaborator for the agentic
// tier: it owns the actual reasoning/tool-call loop internals and is asked
// for one step at a time so the executor can enforce step and token
// budgets between turns.
type Agent interface {
	Step(ctx context.Context, fn metadata.Function, input map[string]any, history []Step) (Step, error)
}

// TokenCounter estimates the token cost of a turn, satisfied by
// classifier.TokenEstimator.
type TokenCounter interface {
	Count(text string) (int, error)
}

// AgenticExecutor runs a bounded multi-step Agent loop, enforcing a step
// budget and, when a TokenCounter is installed, a token budget between
// turns.
type AgenticExecutor struct {
	agent       Agent
	tokens      TokenCounter
	maxSteps    int
	tokenBudget int
}

// NewAgenticExecutor builds an agentic-tier executor. maxSteps <= 0 and
// tokenBudget <= 0 both mean "unbounded" for that dimension.
func NewAgenticExecutor(agent Agent, tokens TokenCounter, maxSteps, tokenBudget int) *AgenticExecutor {
	return &AgenticExecutor{agent: agent, tokens: tokens, maxSteps: maxSteps, tokenBudget: tokenBudget}
}

func (e *AgenticExecutor) Execute(ctx context.Context, fn metadata.Function, input, _ map[string]any) (Response, error) {
	var history []Step
	tokensUsed := 0

	for step := 0; e.maxSteps <= 0 || step < e.maxSteps; step++ {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}

		s, err := e.agent.Step(ctx, fn, input, history)
		if err != nil {
			return Response{Status: 500, Body: map[string]any{"error": fmt.Sprintf("agentic step %d failed: %v", step, err)}}, nil
		}
		if s.Done {
			return Response{Status: 200, Body: map[string]any{"output": s.Output}}, nil
		}

		if e.tokens != nil && e.tokenBudget > 0 {
			n, err := e.tokens.Count(s.Text)
			if err == nil {
				tokensUsed += n
			}
			if tokensUsed > e.tokenBudget {
				return Response{Status: 500, Body: map[string]any{"error": "agentic token budget exhausted"}}, nil
			}
		}

		history = append(history, s)
	}

	return Response{Status: 500, Body: map[string]any{"error": "agentic step budget exhausted"}}, nil
}
