// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cascadehq/cascade-engine/internal/ratelimit"
)

// QuotaStatus is a coarse tiering of how close a caller is to its rate
// limit, used only for response emphasis, never the allow/deny decision
// itself (the limiter already made that call).
type QuotaStatus string

const (
	QuotaOK       QuotaStatus = "ok"
	QuotaWarning  QuotaStatus = "warning"  // > 80% of limit consumed
	QuotaCritical QuotaStatus = "critical" // > 95% of limit consumed
	QuotaExceeded QuotaStatus = "exceeded"
)

// classifyQuota buckets a rate-limit Result by consumed fraction.
func classifyQuota(limit int, result ratelimit.Result) QuotaStatus {
	if !result.Allowed {
		return QuotaExceeded
	}
	if limit <= 0 {
		return QuotaOK
	}
	usedFrac := float64(result.Count) / float64(limit)
	switch {
	case usedFrac > 0.95:
		return QuotaCritical
	case usedFrac > 0.80:
		return QuotaWarning
	default:
		return QuotaOK
	}
}

// setRateLimitHeaders attaches the supplemented X-RateLimit-* headers,
// per the usage accumulator.
func setRateLimitHeaders(c *gin.Context, limit int, result ratelimit.Result) {
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	c.Header("X-RateLimit-Quota-Status", string(classifyQuota(limit, result)))
}
