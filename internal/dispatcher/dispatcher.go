// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dispatcher normalizes one tier invocation into an HTTP-shaped
// {status, body} response: status >= 400 is a failure, 202 a deferred
// task, and a body.output field is unwrapped for the caller.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade-engine/internal/metadata"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// Response is the normalized {status, body} shape every executor returns.
type Response struct {
	Status int
	Body   map[string]any
}

// Executor runs one function invocation at a specific tier.
type Executor interface {
	Execute(ctx context.Context, fn metadata.Function, input map[string]any, fallbackContext map[string]any) (Response, error)
}

// Dispatcher routes to the tier-specific Executor and normalizes its
// response: unwraps body.output when present, converts
// non-2xx into a thrown failure carrying the body's error message.
type Dispatcher struct {
	executors map[tier.Tier]Executor
}

// New constructs a Dispatcher with no installed executors; Install adds
// them. A tier with no installed executor is filtered out of the cascade's
// tier order.
func New() *Dispatcher {
	return &Dispatcher{executors: make(map[tier.Tier]Executor)}
}

// Install registers the executor for t, overwriting any prior registration.
func (d *Dispatcher) Install(t tier.Tier, executor Executor) {
	d.executors[t] = executor
}

// Installed reports whether t has a registered executor.
func (d *Dispatcher) Installed(t tier.Tier) bool {
	_, ok := d.executors[t]
	return ok
}

// Dispatch runs fn's tier executor and returns its normalized output, or an
// error describing a non-2xx/thrown failure.
func (d *Dispatcher) Dispatch(ctx context.Context, t tier.Tier, fn metadata.Function, input, fallbackContext map[string]any) (map[string]any, error) {
	executor, ok := d.executors[t]
	if !ok {
		return nil, fmt.Errorf("cascade: no executor installed for tier %q", t)
	}

	resp, err := executor.Execute(ctx, fn, input, fallbackContext)
	if err != nil {
		return nil, err
	}

	if resp.Status >= 400 {
		msg := "tier execution failed"
		if e, ok := resp.Body["error"]; ok {
			if s, ok := e.(string); ok {
				msg = s
			} else {
				msg = fmt.Sprint(e)
			}
		}
		return nil, fmt.Errorf("cascade: tier %q returned status %d: %s", t, resp.Status, msg)
	}

	if output, ok := resp.Body["output"]; ok {
		if m, ok := output.(map[string]any); ok {
			return m, nil
		}
		return map[string]any{"output": output}, nil
	}
	return resp.Body, nil
}
