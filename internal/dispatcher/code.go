// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade-engine/internal/metadata"
	"github.com/cascadehq/cascade-engine/internal/store"
)

// Sandbox runs previously fetched code against a JSON input and returns a
// JSON output. Concrete sandboxes are external; only the interface lives
// here.
type Sandbox interface {
	Run(ctx context.Context, code *store.CodeObject, language string, input map[string]any) (map[string]any, error)
}

// CodeExecutor is the code-tier Executor. It fetches the function's source
// derivative from a CodeStore and hands it to a Sandbox.
type CodeExecutor struct {
	codeStore store.CodeStore
	sandbox   Sandbox
}

// NewCodeExecutor builds a code-tier executor over a store and sandbox.
func NewCodeExecutor(codeStore store.CodeStore, sandbox Sandbox) *CodeExecutor {
	return &CodeExecutor{codeStore: codeStore, sandbox: sandbox}
}

func (e *CodeExecutor) Execute(ctx context.Context, fn metadata.Function, input, _ map[string]any) (Response, error) {
	obj, err := e.codeStore.GetCode(ctx, fn.ID, fn.Version, metadata.DerivativeSource)
	if err != nil {
		return Response{}, fmt.Errorf("cascade: fetch code for %s@%s: %w", fn.ID, fn.Version, err)
	}
	if obj == nil {
		return Response{Status: 404, Body: map[string]any{"error": "code not found"}}, nil
	}

	output, err := e.sandbox.Run(ctx, obj, fn.Language, input)
	if err != nil {
		return Response{Status: 500, Body: map[string]any{"error": err.Error()}}, nil
	}
	return Response{Status: 200, Body: map[string]any{"output": output}}, nil
}
