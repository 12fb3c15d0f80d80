// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/cascadehq/cascade-engine/internal/cascade"
	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/ids"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

// OptionsBody is the wire shape of cascade.Options, before
// duration-literal normalization.
type OptionsBody struct {
	StartTier      string         `json:"startTier"`
	SkipTiers      []string       `json:"skipTiers"`
	TierTimeouts   map[string]any `json:"tierTimeouts"`
	TotalTimeout   any            `json:"totalTimeout"`
	EnableParallel bool           `json:"enableParallel"`
	EnableFallback bool           `json:"enableFallback"`
}

// CascadeRequestBody is the wire shape of a cascade invocation request.
type CascadeRequestBody struct {
	Input   any         `json:"input"`
	Options OptionsBody `json:"options"`
}

// decodeJSON reads and unmarshals body via goccy/go-json.
func decodeJSON(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return cerrors.New(cerrors.InvalidJSON, "failed to read request body", nil)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return cerrors.New(cerrors.InvalidJSON, "malformed JSON body", map[string]any{"cause": err.Error()})
	}
	return nil
}

// toCascadeOptions normalizes the wire OptionsBody into cascade.Options,
// applying the defaults and the duration-literal grammar for any
// string-typed timeout field.
func toCascadeOptions(body OptionsBody, defaults map[tier.Tier]time.Duration) (cascade.Options, error) {
	opts := cascade.DefaultOptions()
	if len(defaults) > 0 {
		opts.TierTimeouts = defaults
	}

	if body.StartTier != "" {
		t := tier.Tier(body.StartTier)
		if t != tier.Auto && !tier.Valid(t) {
			return cascade.Options{}, cerrors.New(cerrors.InvalidParameter, "invalid startTier", map[string]any{"startTier": body.StartTier})
		}
		opts.StartTier = t
	}

	for _, s := range body.SkipTiers {
		t := tier.Tier(s)
		if !tier.Valid(t) {
			return cascade.Options{}, cerrors.New(cerrors.InvalidParameter, "invalid skipTiers entry", map[string]any{"tier": s})
		}
		opts.SkipTiers = append(opts.SkipTiers, t)
	}

	if len(body.TierTimeouts) > 0 {
		merged := make(map[tier.Tier]time.Duration, len(opts.TierTimeouts))
		for k, v := range opts.TierTimeouts {
			merged[k] = v
		}
		for k, v := range body.TierTimeouts {
			t := tier.Tier(k)
			if !tier.Valid(t) {
				return cascade.Options{}, cerrors.New(cerrors.InvalidParameter, "invalid tierTimeouts key", map[string]any{"tier": k})
			}
			ms, err := durationMs(v)
			if err != nil {
				return cascade.Options{}, err
			}
			merged[t] = ms
		}
		opts.TierTimeouts = merged
	}

	if body.TotalTimeout != nil {
		ms, err := durationMs(body.TotalTimeout)
		if err != nil {
			return cascade.Options{}, err
		}
		opts.TotalTimeout = ms
	}

	opts.EnableParallel = body.EnableParallel
	opts.EnableFallback = body.EnableFallback && !body.EnableParallel

	return opts, nil
}

// durationMs normalizes a wire duration value (a bare millisecond number or
// a "<integer><unit>" literal) into a time.Duration.
func durationMs(v any) (time.Duration, error) {
	switch t := v.(type) {
	case float64:
		return time.Duration(t) * time.Millisecond, nil
	case string:
		ms, err := ids.ParseDurationMs(t)
		if err != nil {
			return 0, cerrors.New(cerrors.InvalidDuration, "invalid duration literal", map[string]any{"value": t})
		}
		return time.Duration(ms) * time.Millisecond, nil
	default:
		return 0, cerrors.New(cerrors.InvalidDuration, "duration must be a number or string literal", nil)
	}
}

// decodeInvocationBody decodes a cascade/invoke request by content type:
// JSON is primary; text/plain becomes {"text": <body>}; multipart form
// fields become the input map, with an optional "options" field carrying
// the JSON options object.
func decodeInvocationBody(c *gin.Context) (CascadeRequestBody, error) {
	contentType := c.ContentType()
	switch {
	case strings.HasPrefix(contentType, "text/plain"):
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return CascadeRequestBody{}, cerrors.New(cerrors.InvalidJSON, "failed to read request body", nil)
		}
		return CascadeRequestBody{Input: map[string]any{"text": string(data)}}, nil

	case strings.HasPrefix(contentType, "multipart/form-data"):
		form, err := c.MultipartForm()
		if err != nil {
			return CascadeRequestBody{}, cerrors.New(cerrors.Validation, "malformed multipart form", map[string]any{"cause": err.Error()})
		}
		body := CascadeRequestBody{}
		input := make(map[string]any, len(form.Value))
		for name, values := range form.Value {
			if len(values) == 0 {
				continue
			}
			if name == "options" {
				if err := json.Unmarshal([]byte(values[0]), &body.Options); err != nil {
					return CascadeRequestBody{}, cerrors.New(cerrors.InvalidJSON, "malformed options field", map[string]any{"cause": err.Error()})
				}
				continue
			}
			input[name] = values[0]
		}
		body.Input = input
		return body, nil

	default:
		var body CascadeRequestBody
		if err := decodeJSON(c.Request.Body, &body); err != nil {
			return CascadeRequestBody{}, err
		}
		return body, nil
	}
}
