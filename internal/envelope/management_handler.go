// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/ids"
	"github.com/cascadehq/cascade-engine/internal/metadata"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// DeployRequest is the body of POST /functions.
type DeployRequest struct {
	ID           string            `json:"id"`
	Version      string            `json:"version"`
	Type         string            `json:"type"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Language     string            `json:"language"`
	EntryPoint   string            `json:"entryPoint"`
	Dependencies map[string]string `json:"dependencies"`
	InputSchema  map[string]any    `json:"inputSchema"`
	OutputSchema map[string]any    `json:"outputSchema"`
	Tags         []string          `json:"tags"`
	Permissions  []string          `json:"permissions"`
	SystemPrompt string            `json:"systemPrompt"`
	UserPrompt   string            `json:"userPrompt"`
	Goal         string            `json:"goal"`
	Code         string            `json:"code"`
}

// HandleDeploy implements POST /functions.
func (s *Service) HandleDeploy(c *gin.Context) {
	requestID := ids.NewRequestID()

	var req DeployRequest
	if err := decodeJSON(c.Request.Body, &req); err != nil {
		WriteError(c, requestID, err)
		return
	}
	if err := ids.ValidateFunctionID(req.ID); err != nil {
		WriteError(c, requestID, err)
		return
	}
	if req.Name == "" {
		WriteError(c, requestID, cerrors.New(cerrors.MissingRequired, "name is required", nil))
		return
	}
	if req.Type != "" && !tier.Valid(tier.Tier(req.Type)) {
		WriteError(c, requestID, cerrors.New(cerrors.Validation, "unknown function type: "+req.Type, map[string]any{"type": req.Type}))
		return
	}

	fn := metadata.Function{
		ID: req.ID, Version: req.Version, Type: metadataTier(req.Type),
		Name: req.Name, Description: req.Description, Language: req.Language,
		EntryPoint: req.EntryPoint, Dependencies: req.Dependencies,
		InputSchema: req.InputSchema, OutputSchema: req.OutputSchema,
		Tags: req.Tags, Permissions: req.Permissions,
		SystemPrompt: req.SystemPrompt, UserPrompt: req.UserPrompt, Goal: req.Goal,
	}

	stored, err := s.Metadata.PutMetadata(c.Request.Context(), fn)
	if err != nil {
		WriteError(c, requestID, err)
		return
	}

	if req.Code != "" && s.Code != nil {
		if err := s.Code.PutCode(c.Request.Context(), stored.ID, stored.Version, metadata.DerivativeSource, []byte(req.Code)); err != nil {
			WriteError(c, requestID, err)
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"function": stored})
}

// HandleDeleteFunction implements DELETE /functions/:id.
func (s *Service) HandleDeleteFunction(c *gin.Context) {
	requestID := ids.NewRequestID()
	id := c.Param("id")
	if err := s.Metadata.DeleteMetadata(c.Request.Context(), id); err != nil {
		WriteError(c, requestID, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleListFunctions implements GET /functions.
func (s *Service) HandleListFunctions(c *gin.Context) {
	requestID := ids.NewRequestID()

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(c, requestID, cerrors.New(cerrors.InvalidParameter, "invalid limit", nil))
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	page, err := s.Metadata.ListMetadata(c.Request.Context(), c.Query("cursor"), limit, c.Query("type"))
	if err != nil {
		WriteError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": page.Items, "nextCursor": page.NextCursor})
}

// patchableFields is the allow-list for PATCH /functions/:id; anything
// else in the body is rejected with 400.
var patchableFields = map[string]struct{}{
	"name": {}, "description": {}, "tags": {}, "permissions": {},
}

// HandlePatchFunction implements PATCH /functions/:id.
func (s *Service) HandlePatchFunction(c *gin.Context) {
	requestID := ids.NewRequestID()
	id := c.Param("id")

	var patch map[string]any
	if err := decodeJSON(c.Request.Body, &patch); err != nil {
		WriteError(c, requestID, err)
		return
	}
	for field := range patch {
		if _, ok := patchableFields[field]; !ok {
			WriteError(c, requestID, cerrors.New(cerrors.Validation, "field is not mutable via PATCH", map[string]any{"field": field}))
			return
		}
	}

	fn, err := s.Metadata.GetMetadata(c.Request.Context(), id, "")
	if err != nil {
		WriteError(c, requestID, err)
		return
	}
	if fn == nil {
		WriteError(c, requestID, cerrors.New(cerrors.FunctionNotFound, "function not found: "+id, map[string]any{"functionId": id}))
		return
	}

	if name, ok := patch["name"].(string); ok {
		fn.Name = name
	}
	if desc, ok := patch["description"].(string); ok {
		fn.Description = desc
	}
	if tags, ok := patch["tags"].([]any); ok {
		fn.Tags = toStringSlice(tags)
	}
	if perms, ok := patch["permissions"].([]any); ok {
		fn.Permissions = toStringSlice(perms)
	}

	stored, err := s.Metadata.PutMetadata(c.Request.Context(), *fn)
	if err != nil {
		WriteError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"function": stored})
}

func toStringSlice(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func metadataTier(t string) tier.Tier {
	return tier.Tier(t)
}
