package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPurge removes expired sessions from the session store.
	TaskSessionPurge = "auth:session_purge"
	// DefaultPurgeCron runs the purge hourly when no schedule is configured.
	DefaultPurgeCron = "@every 1h"
)

// SessionPurgePayload carries an optional grace period. Sessions that expired
// less than Grace ago are kept so the resolver can still report them as expired.
type SessionPurgePayload struct {
	Grace time.Duration `json:"grace"`
}

// NewSessionPurgeTask constructs the purge task.
func NewSessionPurgeTask(grace time.Duration) (*asynq.Task, error) {
	if grace < 0 {
		grace = 0
	}
	data, err := json.Marshal(SessionPurgePayload{Grace: grace})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}
