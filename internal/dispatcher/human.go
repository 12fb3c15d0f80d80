// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade-engine/internal/metadata"
)

// TaskQueue creates an out-of-band human task and returns a handle,
// without blocking for its resolution. Queue backends are external.
type TaskQueue interface {
	CreateTask(ctx context.Context, fn metadata.Function, input map[string]any) (taskID, taskURL string, err error)
}

// HumanExecutor is the human-tier Executor. It never blocks: it creates a
// task and returns 202 with pendingHumanReview set.
type HumanExecutor struct {
	queue TaskQueue
}

// NewHumanExecutor builds a human-tier executor over queue.
func NewHumanExecutor(queue TaskQueue) *HumanExecutor {
	return &HumanExecutor{queue: queue}
}

func (e *HumanExecutor) Execute(ctx context.Context, fn metadata.Function, input, _ map[string]any) (Response, error) {
	taskID, taskURL, err := e.queue.CreateTask(ctx, fn, input)
	if err != nil {
		return Response{Status: 500, Body: map[string]any{"error": fmt.Sprintf("create human task: %v", err)}}, nil
	}
	return Response{
		Status: 202,
		Body: map[string]any{
			"output": map[string]any{
				"taskId":             taskID,
				"taskUrl":            taskURL,
				"taskStatus":         "pending",
				"pendingHumanReview": true,
			},
		},
	}, nil
}
