// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metadata defines the function metadata record and its versioning
// and deployment-history companions, shared by the store, classifier, and
// dispatcher.
package metadata

import (
	"time"

	"github.com/cascadehq/cascade-engine/internal/tier"
)

// Function is the declarative description of a deployed function: its
// identity, optional declared tier, schemas, and (for generative/agentic
// tiers) its prompts.
type Function struct {
	ID           string            `json:"id" yaml:"id"`
	Version      string            `json:"version" yaml:"version"`
	Type         tier.Tier         `json:"type,omitempty" yaml:"type,omitempty"`
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Language     string            `json:"language,omitempty" yaml:"language,omitempty"`
	EntryPoint   string            `json:"entryPoint,omitempty" yaml:"entryPoint,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	InputSchema  map[string]any `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty" yaml:"outputSchema,omitempty"`

	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Permissions []string `json:"permissions,omitempty" yaml:"permissions,omitempty"`

	SystemPrompt string `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	UserPrompt   string `json:"userPrompt,omitempty" yaml:"userPrompt,omitempty"`
	Goal         string `json:"goal,omitempty" yaml:"goal,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`

	// OwnerID scopes the per-user manifest enumeration.
	OwnerID string `json:"ownerId,omitempty" yaml:"ownerId,omitempty"`
}

// Clone returns a copy of f with its own Dependencies map and Tags and
// Permissions slices. The InputSchema and OutputSchema maps are not copied
// and stay shared with f.
func (f Function) Clone() Function {
	c := f
	if f.Dependencies != nil {
		c.Dependencies = make(map[string]string, len(f.Dependencies))
		for k, v := range f.Dependencies {
			c.Dependencies[k] = v
		}
	}
	if f.Tags != nil {
		c.Tags = append([]string(nil), f.Tags...)
	}
	if f.Permissions != nil {
		c.Permissions = append([]string(nil), f.Permissions...)
	}
	return c
}

// DeploymentKind distinguishes an ordinary deploy from a synthetic rollback
// record.
type DeploymentKind string

const (
	DeployKindDeploy   DeploymentKind = "deploy"
	DeployKindRollback DeploymentKind = "rollback"
)

// DeploymentRecord is one entry in a function's append-only deployment
// history.
type DeploymentRecord struct {
	Version   string         `json:"version"`
	Kind      DeploymentKind `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
}

// Derivative names a transformed copy of a function's source stored
// alongside it.
type Derivative string

const (
	DerivativeSource   Derivative = "source"
	DerivativeCompiled Derivative = "compiled"
	DerivativeWASM     Derivative = "wasm"
	DerivativeMap      Derivative = "map"
)

// EffectiveDescription picks the description used for classification,
// preferring user prompt, then goal, then system prompt.
func (f Function) EffectiveDescription() string {
	switch {
	case f.UserPrompt != "":
		return f.UserPrompt
	case f.Goal != "":
		return f.Goal
	case f.SystemPrompt != "":
		return f.SystemPrompt
	default:
		return f.Description
	}
}
