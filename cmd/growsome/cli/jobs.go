package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/growsome/growsome/jobs"
)

// Enqueuer is the subset of jobs.Client used to trigger maintenance.
type Enqueuer interface {
	EnqueueSessionPurge(ctx context.Context, grace time.Duration) (*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector jobs.QueueInspector
}

// NewJobsCLI builds the helpers on top of an enqueue client and an optional
// inspector.
func NewJobsCLI(client Enqueuer, inspector jobs.QueueInspector) (*JobsCLI, error) {
	if client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, grace time.Duration) (*asynq.TaskInfo, error) {
	switch name {
	case jobs.TaskSessionPurge:
		return c.client.EnqueueSessionPurge(ctx, grace)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// PurgeOptions defines flags for the purge-sessions command.
type PurgeOptions struct {
	Grace      time.Duration
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type purgeSummary struct {
	TaskID string      `json:"task_id"`
	Queue  string      `json:"queue"`
	Stats  *QueueStats `json:"stats,omitempty"`
}

// PurgeCommand enqueues a session purge and prints the task id.
func (c *JobsCLI) PurgeCommand(ctx context.Context, opts PurgeOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Grace < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "purge-sessions: --grace must not be negative")
		return 1
	}
	info, err := c.Trigger(ctx, jobs.TaskSessionPurge, opts.Grace)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			_, _ = fmt.Fprintln(opts.Stdout, "purge-sessions: a purge is already queued")
			return 0
		}
		_, _ = fmt.Fprintf(opts.Stderr, "purge-sessions: %v\n", err)
		return 1
	}
	summary := purgeSummary{TaskID: info.ID, Queue: info.Queue}
	if stats, err := c.InspectQueue(); err == nil {
		summary.Stats = &stats
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "purge-sessions: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s on queue %s\n", summary.TaskID, summary.Queue)
	if summary.Stats != nil {
		_, _ = fmt.Fprintf(opts.Stdout, "queue: %d pending, %d scheduled, %d retry\n",
			summary.Stats.Pending, summary.Stats.Scheduled, summary.Stats.Retry)
	}
	return 0
}
