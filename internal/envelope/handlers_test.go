// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package envelope

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade-engine/internal/authz"
	"github.com/cascadehq/cascade-engine/internal/dispatcher"
	"github.com/cascadehq/cascade-engine/internal/logaggregator"
	"github.com/cascadehq/cascade-engine/internal/metadata"
	"github.com/cascadehq/cascade-engine/internal/ratelimit"
	"github.com/cascadehq/cascade-engine/internal/store"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

type sumSandbox struct{}

func (sumSandbox) Run(_ context.Context, _ *store.CodeObject, _ string, input map[string]any) (map[string]any, error) {
	a, _ := input["a"].(float64)
	b, _ := input["b"].(float64)
	return map[string]any{"answer": a + b}, nil
}

type failingExecutor struct{ msg string }

func (f failingExecutor) Execute(context.Context, metadata.Function, map[string]any, map[string]any) (dispatcher.Response, error) {
	return dispatcher.Response{}, errors.New(f.msg)
}

type queueStub struct{}

func (queueStub) CreateTask(context.Context, metadata.Function, map[string]any) (string, string, error) {
	return "task_9", "https://tasks.example/task_9", nil
}

func newTestService(t *testing.T) (*Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codeStore := store.NewMemoryCodeStore("")
	disp := dispatcher.New()
	disp.Install(tier.Code, dispatcher.NewCodeExecutor(codeStore, sumSandbox{}))
	disp.Install(tier.Generative, failingExecutor{msg: "generative backend offline"})
	disp.Install(tier.Agentic, failingExecutor{msg: "agentic backend offline"})
	disp.Install(tier.Human, dispatcher.NewHumanExecutor(queueStub{}))

	limiter := ratelimit.NewMemoryLimiter()
	t.Cleanup(limiter.Close)

	logs := logaggregator.New(0)
	t.Cleanup(func() { logs.Drain() })

	svc := &Service{
		Metadata:             store.NewMemoryMetadataStore(),
		Code:                 codeStore,
		Limiter:              limiter,
		Dispatcher:           disp,
		Logs:                 logs,
		Stats:                NewStatistics(),
		Guard:                authz.NewGuard(),
		ClassifierCacheSize:  100,
		ClassifierCacheTTL:   time.Minute,
		AuthorizationEnabled: true,
	}

	r := gin.New()
	svc.RegisterRoutes(r)
	return svc, r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func deployFunction(t *testing.T, r *gin.Engine, body map[string]any) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/functions", body, map[string]string{ScopesHeader: "*"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCascadeDeniedWithoutScope(t *testing.T) {
	_, r := newTestService(t)
	deployFunction(t, r, map[string]any{
		"id": "gen-fn", "version": "1.0.0", "name": "gen-fn", "type": "generative",
	})

	w := doJSON(t, r, http.MethodPost, "/cascade/gen-fn", map[string]any{
		"input":   map[string]any{},
		"options": map[string]any{"startTier": "generative"},
	}, nil) // no scopes header, authorization enabled -> empty scope set

	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	body := decodeBody(t, w)
	errObj := body["error"].(map[string]any)
	require.Equal(t, "FORBIDDEN", errObj["code"])
	details := errObj["details"].(map[string]any)
	require.Equal(t, "generative", details["tier"])
	require.Equal(t, "functions:tier:generative", details["requiredScope"])

	require.NotEmpty(t, w.Header().Get("X-Cascade-Id"))
	require.NotEmpty(t, w.Header().Get("X-Execution-Time"))
}

func TestCascadeCodeTierSuccess(t *testing.T) {
	svc, r := newTestService(t)
	deployFunction(t, r, map[string]any{
		"id": "sum", "version": "1.0.0", "name": "sum", "type": "code",
		"code": "exports.handler = (input) => ({answer: input.a + input.b})",
	})

	w := doJSON(t, r, http.MethodPost, "/cascade/sum", map[string]any{
		"input":   map[string]any{"a": 2, "b": 3},
		"options": map[string]any{"skipTiers": []string{"generative", "agentic", "human"}},
	}, map[string]string{ScopesHeader: "*"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	output := body["output"].(map[string]any)
	require.Equal(t, float64(5), output["answer"])
	require.Equal(t, "code", body["successTier"])

	history := body["history"].([]any)
	require.Len(t, history, 1)
	require.Equal(t, "completed", history[0].(map[string]any)["status"])

	metrics := body["metrics"].(map[string]any)
	require.Equal(t, float64(0), metrics["escalations"])

	require.Equal(t, "code", w.Header().Get("X-Success-Tier"))
	require.NotEmpty(t, w.Header().Get("X-Cascade-Id"))

	snap := svc.Stats.Snapshot("sum")
	require.Equal(t, int64(1), snap.TotalRequests)
}

func TestCascadeEscalatesToHuman(t *testing.T) {
	_, r := newTestService(t)
	// No code stored for this function: the code tier 404s, generative and
	// agentic throw, the human tier answers 202.
	deployFunction(t, r, map[string]any{
		"id": "needs-human", "version": "1.0.0", "name": "needs-human", "type": "code",
	})

	scopes := "functions:tier:generative,functions:tier:agentic,functions:tier:human"
	w := doJSON(t, r, http.MethodPost, "/cascade/needs-human", map[string]any{
		"input": map[string]any{},
	}, map[string]string{ScopesHeader: scopes})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	require.Equal(t, "human", body["successTier"])
	output := body["output"].(map[string]any)
	require.Equal(t, true, output["pendingHumanReview"])

	history := body["history"].([]any)
	require.Len(t, history, 4)
	for _, h := range history[:3] {
		status := h.(map[string]any)["status"].(string)
		require.Contains(t, []string{"failed", "skipped"}, status)
	}
	require.Equal(t, "completed", history[3].(map[string]any)["status"])
}

func TestCascadeExhaustion(t *testing.T) {
	_, r := newTestService(t)
	deployFunction(t, r, map[string]any{
		"id": "doomed", "version": "1.0.0", "name": "doomed", "type": "code",
	})

	w := doJSON(t, r, http.MethodPost, "/cascade/doomed", map[string]any{
		"input":   map[string]any{},
		"options": map[string]any{"skipTiers": []string{"human"}},
	}, map[string]string{ScopesHeader: "*"})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	body := decodeBody(t, w)
	errObj := body["error"].(map[string]any)
	require.Equal(t, "CASCADE_EXHAUSTED", errObj["code"])
	details := errObj["details"].(map[string]any)
	history := details["history"].([]any)
	require.GreaterOrEqual(t, len(history), 3)
	_, hasSuccess := body["successTier"]
	require.False(t, hasSuccess)
}

func TestCascadeUnknownFunction(t *testing.T) {
	_, r := newTestService(t)
	w := doJSON(t, r, http.MethodPost, "/cascade/ghost", map[string]any{"input": map[string]any{}},
		map[string]string{ScopesHeader: "*"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "FUNCTION_NOT_FOUND", decodeBody(t, w)["error"].(map[string]any)["code"])
}

func TestCascadeInvalidFunctionID(t *testing.T) {
	_, r := newTestService(t)
	w := doJSON(t, r, http.MethodPost, "/cascade/-bad-", map[string]any{"input": map[string]any{}},
		map[string]string{ScopesHeader: "*"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_FUNCTION_ID", decodeBody(t, w)["error"].(map[string]any)["code"])
}

func TestCascadeInputSchemaValidation(t *testing.T) {
	_, r := newTestService(t)
	deployFunction(t, r, map[string]any{
		"id": "typed", "version": "1.0.0", "name": "typed", "type": "code",
		"code": "x",
		"inputSchema": map[string]any{
			"type":     "object",
			"required": []string{"a"},
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
			},
		},
	})

	w := doJSON(t, r, http.MethodPost, "/cascade/typed", map[string]any{
		"input": map[string]any{"b": 1},
	}, map[string]string{ScopesHeader: "*"})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Equal(t, "VALIDATION_ERROR", decodeBody(t, w)["error"].(map[string]any)["code"])
}

func TestBodyLimit(t *testing.T) {
	_, r := newTestService(t)

	big := strings.Repeat("x", MaxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/cascade/fn", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.Equal(t, "PAYLOAD_TOO_LARGE", decodeBody(t, w)["error"].(map[string]any)["code"])
}

func TestRateLimitDenies(t *testing.T) {
	svc, r := newTestService(t)
	svc.RateLimit = RateLimitConfig{Limit: 2, Window: time.Minute}
	deployFunction(t, r, map[string]any{
		"id": "sum", "version": "1.0.0", "name": "sum", "type": "code", "code": "x",
	})

	body := map[string]any{
		"input":   map[string]any{"a": 1, "b": 1},
		"options": map[string]any{"skipTiers": []string{"generative", "agentic", "human"}},
	}
	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/cascade/sum", body, map[string]string{ScopesHeader: "*"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := doJSON(t, r, http.MethodPost, "/cascade/sum", body, map[string]string{ScopesHeader: "*"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestDeployValidation(t *testing.T) {
	_, r := newTestService(t)

	w := doJSON(t, r, http.MethodPost, "/functions", map[string]any{
		"id": "fn", "version": "1.0.0",
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "MISSING_REQUIRED", decodeBody(t, w)["error"].(map[string]any)["code"])

	w = doJSON(t, r, http.MethodPost, "/functions", map[string]any{
		"id": "fn", "version": "1.0.0", "name": "fn", "type": "quantum",
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatchRejectsImmutableFields(t *testing.T) {
	_, r := newTestService(t)
	deployFunction(t, r, map[string]any{
		"id": "fn", "version": "1.0.0", "name": "fn", "type": "code",
	})

	w := doJSON(t, r, http.MethodPatch, "/functions/fn", map[string]any{"language": "rust"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/functions/fn", map[string]any{
		"name": "renamed", "tags": []string{"a"},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fn := decodeBody(t, w)["function"].(map[string]any)
	require.Equal(t, "renamed", fn["name"])
}

func TestListFunctionsPagination(t *testing.T) {
	_, r := newTestService(t)
	for _, id := range []string{"a1", "b2", "c3"} {
		deployFunction(t, r, map[string]any{"id": id, "version": "1.0.0", "name": id, "type": "code"})
	}

	w := doJSON(t, r, http.MethodGet, "/functions?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Len(t, body["items"].([]any), 2)
	require.NotEmpty(t, body["nextCursor"])
}

func TestLogsEndpoints(t *testing.T) {
	_, r := newTestService(t)

	w := doJSON(t, r, http.MethodPost, "/logs", map[string]any{
		"functionId": "fn", "level": "info", "message": "one",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/logs", map[string]any{
		"entries": []map[string]any{
			{"functionId": "fn", "level": "error", "message": "two"},
			{"functionId": "fn", "level": "warn", "message": "three"},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, float64(2), decodeBody(t, w)["captured"])

	w = doJSON(t, r, http.MethodGet, "/logs?functionId=fn&level=error", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decodeBody(t, w)["items"].([]any)
	require.Len(t, items, 1)

	w = doJSON(t, r, http.MethodGet, "/metrics?functionId=fn", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/logs/fn", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(3), decodeBody(t, w)["deleted"])
}

func TestStreamSSEFallback(t *testing.T) {
	svc, r := newTestService(t)

	// Pre-capture so tail delivery has something to frame.
	_, err := svc.Logs.Capture(logaggregator.Entry{FunctionID: "fn", Level: logaggregator.Info, Message: "tailed"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream?functionId=fn&tail=1", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "event: log")
	require.Contains(t, w.Body.String(), "tailed")
}

func TestInvokeTextPlain(t *testing.T) {
	_, r := newTestService(t)
	deployFunction(t, r, map[string]any{
		"id": "echo", "version": "1.0.0", "name": "echo", "type": "human",
	})

	req := httptest.NewRequest(http.MethodPost, "/invoke/echo", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set(ScopesHeader, "*")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	require.Equal(t, "human", body["successTier"])
}

func TestInvokeVersionAddressing(t *testing.T) {
	_, r := newTestService(t)
	deployFunction(t, r, map[string]any{
		"id": "ver", "version": "1.0.0", "name": "ver", "type": "human",
	})
	deployFunction(t, r, map[string]any{
		"id": "ver", "version": "2.0.0", "name": "ver", "type": "human",
	})

	w := doJSON(t, r, http.MethodPost, "/invoke/ver?version=9.9.9", map[string]any{
		"input": map[string]any{},
	}, map[string]string{ScopesHeader: "*"})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodPost, "/invoke/ver?version=1.0.0", map[string]any{
		"input": map[string]any{},
	}, map[string]string{ScopesHeader: "*"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
