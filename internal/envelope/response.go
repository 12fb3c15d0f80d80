// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package envelope is the HTTP surface of the cascade engine: request
// decoding, response shaping, and the gin.HandlerFunc routes, one handler
// file per resource.
package envelope

import (
	"github.com/gin-gonic/gin"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
)

// ErrorBody is the user-visible error shape:
// {error:{code,message,details?}, requestId?}.
type ErrorBody struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"requestId,omitempty"`
}

// ErrorDetail is the nested {code,message,details} object.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError shapes err into the standard error envelope and writes it with
// the status its kind maps to. A plain error (not a *CascadeError) is
// reported as INTERNAL_ERROR/500 and its message is never exposed
// verbatim; the original goes to the log aggregator by the caller.
func WriteError(c *gin.Context, requestID string, err error) {
	ce, ok := cerrors.As(err)
	if !ok {
		ce = cerrors.New(cerrors.InternalError, "internal error", nil)
	}
	code := ce.Kind
	if code == cerrors.TierAuthorization {
		// The typed cascade-internal kind crosses the wire as a plain 403.
		code = cerrors.Forbidden
	}
	c.JSON(ce.Status(), ErrorBody{
		Error:     ErrorDetail{Code: string(code), Message: ce.Message, Details: ce.Details},
		RequestID: requestID,
	})
}
