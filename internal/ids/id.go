package ids

import "github.com/google/uuid"

// NewExecutionID generates a new cascade execution id.
func NewExecutionID() string { return "exec_" + uuid.New().String() }

// NewCascadeID generates a new cascade id, attached to the cascade result's
// "_meta.cascadeId" field.
func NewCascadeID() string { return "cas_" + uuid.New().String() }

// NewLogEntryID generates a new log entry id. UUIDv4 gives a wide enough entropy
// source that collisions are not a practical concern; see DESIGN.md.
func NewLogEntryID() string { return "log_" + uuid.New().String() }

// NewRequestID generates a request-scoped id used for log correlation.
func NewRequestID() string { return "req_" + uuid.New().String() }
