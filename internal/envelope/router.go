// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
)

// MaxBodyBytes is the inbound request body limit.
const MaxBodyBytes = 10 * 1024 * 1024

// ScopesHeader carries the caller's granted scope set, comma-separated.
// Credential issuance and verification are out of scope; this
// header is the interface the external authenticator populates after it has
// verified the caller.
const ScopesHeader = "X-Principal-Scopes"

// bodyLimit rejects bodies over MaxBodyBytes with 413 before any handler
// reads them, and caps reads for chunked bodies that never declared a
// length.
func bodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > MaxBodyBytes {
			WriteError(c, "", cerrors.New(cerrors.PayloadTooLarge, "request body exceeds 10 MiB", nil))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
		c.Next()
	}
}

// principalScopes parses ScopesHeader into the context slot the cascade
// handler reads. When authorization is disabled the slot is left unset, so
// a nil Principal reaches the guard, the deliberate, explicit
// trusted-context configuration.
func (s *Service) principalScopes() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.AuthorizationEnabled {
			c.Next()
			return
		}
		var scopes []string
		if raw := c.GetHeader(ScopesHeader); raw != "" {
			for _, sc := range strings.Split(raw, ",") {
				if sc = strings.TrimSpace(sc); sc != "" {
					scopes = append(scopes, sc)
				}
			}
		}
		if scopes == nil {
			scopes = []string{}
		}
		c.Set("principalScopes", scopes)
		c.Next()
	}
}

// RegisterRoutes installs every route on r.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.Use(bodyLimit(), s.principalScopes())

	r.POST("/cascade/:functionId", s.HandleCascade)
	r.POST("/invoke/:functionId", s.HandleInvoke)

	r.POST("/functions", s.HandleDeploy)
	r.GET("/functions", s.HandleListFunctions)
	r.DELETE("/functions/:id", s.HandleDeleteFunction)
	r.PATCH("/functions/:id", s.HandlePatchFunction)

	r.POST("/logs", s.HandleCaptureLogs)
	r.GET("/logs", s.HandleQueryLogs)
	r.DELETE("/logs/:functionId", s.HandleDeleteLogs)
	r.GET("/metrics", s.HandleMetrics)
	r.GET("/stream", s.HandleStream)
}
