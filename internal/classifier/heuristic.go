// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package classifier

import (
	"strings"

	"github.com/cascadehq/cascade-engine/internal/tier"
)

// Keyword tables for the deterministic fallback path used when the model
// backend is unavailable. Matching is plain substring search over the
// lowercased id and description.
var codePatterns = []string{
	"function", "def ", "class ", "import ", "from ",
	"console.log", "print(", "printf", "echo ",
	"if (", "for (", "while (", "switch (",
	"```", "```python", "```javascript", "```go",
	"git ", "npm ", "pip ", "cargo ",
	"coding", "programming", "software", "development",
	"algorithm", "data structure", "binary tree",
}

var mathPatterns = []string{
	"calculate", "solve", "equation", "formula",
	"derivative", "integral", "matrix", "probability",
	"statistics", "algebra", "geometry", "calculus",
	"x =", "y =", "f(x)",
}

var agenticPatterns = []string{
	"multi-step", "plan", "investigate", "research", "workflow",
	"orchestrate", "step by step", "agent",
}

var humanPatterns = []string{
	"approve", "approval", "review by", "sign off", "escalate to human",
	"manual review",
}

func containsAny(content string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(content, p) {
			return true
		}
	}
	return false
}

// Heuristic is the deterministic, dependency-free fallback classifier.
// It inspects the function id and description only: no model call, no
// network.
func Heuristic(req Request) Decision {
	content := strings.ToLower(req.FunctionID + " " + req.Description)

	switch {
	case containsAny(content, humanPatterns):
		return Decision{Type: tier.Human, Confidence: 0.85, Reasoning: "human-review keywords detected"}
	case containsAny(content, agenticPatterns):
		return Decision{Type: tier.Agentic, Confidence: 0.8, Reasoning: "multi-step/agentic keywords detected"}
	case containsAny(content, codePatterns):
		return Decision{Type: tier.Code, Confidence: 0.9, Reasoning: "code patterns detected"}
	case containsAny(content, mathPatterns):
		return Decision{Type: tier.Generative, Confidence: 0.75, Reasoning: "mathematical/reasoning patterns detected"}
	default:
		return Decision{Type: tier.Code, Confidence: 0.5, Reasoning: "no strong signal, defaulting to code tier"}
	}
}
