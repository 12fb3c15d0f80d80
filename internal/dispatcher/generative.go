// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade-engine/internal/metadata"
)

// ModelProvider is the external model collaborator: a single system/user-
// prompt call against output-schema-shaped JSON.
type ModelProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, outputSchema map[string]any, input map[string]any) (map[string]any, error)
}

// GenerativeExecutor is the generative-tier Executor: one model call.
type GenerativeExecutor struct {
	provider ModelProvider
}

// NewGenerativeExecutor builds a generative-tier executor over provider.
func NewGenerativeExecutor(provider ModelProvider) *GenerativeExecutor {
	return &GenerativeExecutor{provider: provider}
}

func (e *GenerativeExecutor) Execute(ctx context.Context, fn metadata.Function, input, fallbackContext map[string]any) (Response, error) {
	callInput := input
	if len(fallbackContext) > 0 {
		callInput = make(map[string]any, len(input)+1)
		for k, v := range input {
			callInput[k] = v
		}
		callInput["_fallbackContext"] = fallbackContext
	}

	output, err := e.provider.Complete(ctx, fn.SystemPrompt, fn.UserPrompt, fn.OutputSchema, callInput)
	if err != nil {
		return Response{Status: 500, Body: map[string]any{"error": fmt.Sprintf("generative call failed: %v", err)}}, nil
	}
	return Response{Status: 200, Body: map[string]any{"output": output}}, nil
}
