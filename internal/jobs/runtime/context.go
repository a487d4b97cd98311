package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/repos"
	types "github.com/yungbote/coursegen/internal/domain"
	"github.com/yungbote/coursegen/internal/platform/dbctx"
	"github.com/yungbote/coursegen/internal/services"
)

/*
Context is the execution handle for one run of one job.

Handlers never touch job_run directly. Progress is reported through Progress,
and a handler may end the run itself with Succeed or Fail. Anything the handler
leaves open is settled by the Executor from the returned error.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.JobRun
	Repo   repos.JobRunRepo
	Notify services.JobNotifier

	payload  map[string]any
	terminal bool
}

var terminalStatuses = []string{types.JobStatusSucceeded, types.JobStatusFailed}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	c.payload = map[string]any{}
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		return err
	}
	if m != nil {
		c.payload = m
	}
	return nil
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(fmt.Sprint(v)))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Terminal reports whether this run already wrote a final status.
func (c *Context) Terminal() bool { return c != nil && c.terminal }

func (c *Context) dbc() dbctx.Context {
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Status writes outlive the handler's deadline.
	return dbctx.Context{Ctx: context.WithoutCancel(ctx)}
}

// Progress records a non-terminal update. It is dropped once the row is final.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil || c.Job == nil {
		return
	}
	now := time.Now().UTC()
	if c.Repo != nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, terminalStatuses, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	c.Job.Stage = stage
	c.Job.Progress = pct
	c.Job.Message = msg
	c.Job.HeartbeatAt = &now
	c.Job.UpdatedAt = now
	if c.Notify != nil {
		c.Notify.JobProgress(c.dbc(), c.Job, stage, pct, msg)
	}
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil || c.Job == nil || c.terminal {
		return
	}
	now := time.Now().UTC()
	res := datatypes.JSON([]byte(`{}`))
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	c.terminal = true
	if c.Repo != nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, terminalStatuses, map[string]interface{}{
			"status":       types.JobStatusSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"next_run_at":  nil,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}
	c.Job.Status = types.JobStatusSucceeded
	c.Job.Stage = finalStage
	c.Job.Progress = 100
	c.Job.Message = ""
	c.Job.Error = ""
	c.Job.Result = res
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
	if c.Notify != nil {
		c.Notify.JobDone(c.dbc(), c.Job)
	}
}

// Fail marks the run terminally failed. The job is not retried.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Job == nil || c.terminal {
		return
	}
	now := time.Now().UTC()
	msg := errString(err)
	c.terminal = true
	if c.Repo != nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, terminalStatuses, map[string]interface{}{
			"status":        types.JobStatusFailed,
			"stage":         stage,
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"next_run_at":   nil,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}
	c.Job.Status = types.JobStatusFailed
	c.Job.Stage = stage
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
	if c.Notify != nil {
		c.Notify.JobFailed(c.dbc(), c.Job, stage, msg)
	}
}

// Retry releases the row as retrying; it becomes claimable at nextRunAt.
func (c *Context) Retry(stage string, err error, nextRunAt time.Time) {
	if c == nil || c.Job == nil || c.terminal {
		return
	}
	now := time.Now().UTC()
	msg := errString(err)
	c.terminal = true
	if c.Repo != nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(c.dbc(), c.Job.ID, terminalStatuses, map[string]interface{}{
			"status":        types.JobStatusRetrying,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"next_run_at":   nextRunAt,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}
	c.Job.Status = types.JobStatusRetrying
	c.Job.Stage = stage
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.NextRunAt = &nextRunAt
	c.Job.LockedAt = nil
	c.Job.UpdatedAt = now
	if c.Notify != nil {
		c.Notify.JobRetrying(c.dbc(), c.Job, msg, nextRunAt)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
