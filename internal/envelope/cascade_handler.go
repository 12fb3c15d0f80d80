// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cascadehq/cascade-engine/internal/authz"
	"github.com/cascadehq/cascade-engine/internal/cascade"
	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/ids"
	"github.com/cascadehq/cascade-engine/internal/logging"
	"github.com/cascadehq/cascade-engine/internal/tier"
	"github.com/cascadehq/cascade-engine/internal/validate"
)

// HandleCascade implements POST /cascade/:functionId, the pipeline of
// the data-flow line: validate → rate-limit → metadata fetch → schema
// validation → preflight authorize → cascade executor (which classifies if
// auto and re-authorizes each tier) → shape response.
func (s *Service) HandleCascade(c *gin.Context) {
	s.invoke(c, c.Param("functionId"), "")
}

// HandleInvoke implements POST /invoke/:functionId[?version=...], the
// version-addressable sibling of HandleCascade.
func (s *Service) HandleInvoke(c *gin.Context) {
	s.invoke(c, c.Param("functionId"), c.Query("version"))
}

func (s *Service) invoke(c *gin.Context, functionID, version string) {
	ctx := c.Request.Context()
	requestID := ids.NewRequestID()
	cascadeID := ids.NewCascadeID()
	start := time.Now()

	// The cascade id and timing headers ride on every outcome, success
	// and failure alike.
	c.Header("X-Cascade-Id", cascadeID)
	fail := func(err error) {
		c.Header("X-Execution-Time", strconv.FormatInt(time.Since(start).Milliseconds(), 10))
		WriteError(c, requestID, err)
	}

	if err := ids.ValidateFunctionID(functionID); err != nil {
		fail(err)
		return
	}

	body, err := decodeInvocationBody(c)
	if err != nil {
		fail(err)
		return
	}

	opts, err := toCascadeOptions(body.Options, s.TierTimeouts)
	if err != nil {
		fail(err)
		return
	}

	if s.Limiter != nil && s.RateLimit.Limit > 0 {
		result, err := s.Limiter.CheckAndIncrement(ctx, functionID, s.RateLimit.Limit, s.RateLimit.Window)
		if err != nil {
			// Fail-open: a rate limiter outage never blocks the hot path.
		} else {
			setRateLimitHeaders(c, s.RateLimit.Limit, result)
			if !result.Allowed {
				fail(cerrors.New(cerrors.ServiceUnavailable, "rate limit exceeded", map[string]any{"resetAt": result.ResetAt}))
				return
			}
		}
	}

	fn, err := s.Metadata.GetMetadata(ctx, functionID, version)
	if err != nil {
		fail(err)
		return
	}
	if fn == nil {
		fail(cerrors.New(cerrors.FunctionNotFound, "function not found: "+functionID, map[string]any{"functionId": functionID}))
		return
	}

	input, _ := body.Input.(map[string]any)

	if fn.InputSchema != nil {
		if res := validate.Validate(fn.InputSchema, body.Input); !res.Valid {
			fail(cerrors.New(cerrors.Validation, "input does not match declared schema", map[string]any{"errors": res.Errors}))
			return
		}
	}

	if opts.StartTier == "" || (opts.StartTier == tier.Auto && fn.Type != "") {
		opts.StartTier = fn.Type
	}
	if opts.StartTier == "" {
		opts.StartTier = tier.Auto
	}

	var principal *authz.Principal
	if scopes, ok := c.Get("principalScopes"); ok {
		if list, ok := scopes.([]string); ok {
			principal = authz.NewPrincipal(list...)
		}
	}

	if err := s.Guard.Check(principal, preflightTier(opts.StartTier, fn.Type)); err != nil {
		fail(err)
		return
	}

	exec := cascade.New(s.Guard, s.NewRequestClassifier())
	def := cascade.Definition{Function: *fn, Dispatcher: s.Dispatcher, Options: opts}

	result, err := exec.Run(ctx, def, input, principal)
	elapsed := time.Since(start)

	if err != nil {
		if s.Stats != nil {
			s.Stats.RecordFailure(functionID)
		}
		if s.Logs != nil {
			s.Logs.CaptureError(functionID, requestID, err)
		}
		logging.WithCascade(requestID, cascadeID, string(opts.StartTier), functionID).
			WithError(err).Error("cascade did not reach a successful tier")
		fail(err)
		return
	}

	if s.Stats != nil {
		s.Stats.RecordSuccess(functionID, result.SuccessTier)
	}

	c.Header("X-Success-Tier", string(result.SuccessTier))
	c.Header("X-Execution-Time", strconv.FormatInt(elapsed.Milliseconds(), 10))

	meta := gin.H{
		"cascadeId":      cascadeID,
		"functionId":     functionID,
		"executedAt":     start.UTC(),
		"tiersAttempted": len(result.History),
	}
	if result.AutoClassified && result.Classification != nil {
		meta["autoClassified"] = true
		meta["classification"] = gin.H{
			"type":       result.Classification.Type,
			"confidence": result.Classification.Confidence,
			"reasoning":  result.Classification.Reasoning,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"output":       result.Output,
		"successTier":  result.SuccessTier,
		"history":      result.History,
		"skippedTiers": result.SkippedTiers,
		"metrics":      result.Metrics,
		"_meta":        meta,
	})
}

// preflightTier is the tier authorization checks pre-flight: the function's declared type if set,
// otherwise the requested start tier, with auto (not yet classified) checked as code.
func preflightTier(startTier, declaredType tier.Tier) tier.Tier {
	if declaredType != "" {
		return declaredType
	}
	if startTier == tier.Auto {
		return tier.Code
	}
	return startTier
}
