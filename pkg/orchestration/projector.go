// Package orchestration derives task state from append logs.
//
// Nothing here mutates a task in place. The log is the source of truth:
// claims, responses, cancels, and blocks are entries referencing a task, and
// every projection replays them under the time rules below. The one
// denormalization allowed is the claim row's expires_at, which renew updates
// so the projection never needs to chase renew entries.
package orchestration

import (
	"sort"
	"time"

	"github.com/capmd/capmd/pkg/models"
)

// TaskState is the derived lifecycle state of a task.
type TaskState string

const (
	// StatePending means no response and no live claim.
	StatePending TaskState = "pending"
	// StateClaimed means an unexpired active claim holds the task.
	StateClaimed TaskState = "claimed"
	// StateCompleted means at least one response references the task.
	StateCompleted TaskState = "completed"
	// StateStalled means the latest claim's lease lapsed with no response.
	StateStalled TaskState = "stalled"
)

// Claim is the projection of one claim entry.
type Claim struct {
	ID        string
	Author    string
	ExpiresAt *time.Time
	CreatedAt time.Time
	Seq       uint64
	Cancelled bool
}

// Active reports whether the claim lease is live at the given instant.
func (c *Claim) Active(now time.Time) bool {
	return !c.Cancelled && c.ExpiresAt != nil && c.ExpiresAt.After(now)
}

// Task is the derived view of one task entry and everything referencing it.
type Task struct {
	ID        string
	FileID    string
	Author    string
	Content   string
	Priority  models.Priority
	Labels    models.Labels
	DueAt     *time.Time
	CreatedAt time.Time
	Seq       uint64

	State TaskState
	// Claim is the governing claim: the latest non-cancelled one.
	Claim     *Claim
	Responses int
	Blocked   bool
}

// Project replays a file- or workspace-ordered append slice into derived
// tasks. Entries must be in insertion order. Refs resolve within a single
// file, so tasks are keyed by (fileID, publicID).
func Project(appends []*models.Append, now time.Time) []*Task {
	type key struct{ fileID, id string }

	tasks := make(map[key]*Task)
	var order []key
	// claim public id -> owning task, for cancels addressed at claims
	claims := make(map[key]*Claim)

	for _, a := range appends {
		switch a.Type {
		case models.AppendTask:
			k := key{a.FileID, a.PublicID}
			tasks[k] = &Task{
				ID:        a.PublicID,
				FileID:    a.FileID,
				Author:    a.Author,
				Content:   a.Preview,
				Priority:  a.Priority,
				Labels:    a.Labels,
				DueAt:     a.DueAt,
				CreatedAt: a.CreatedAt,
				Seq:       a.Seq,
			}
			order = append(order, k)

		case models.AppendClaim:
			t := tasks[key{a.FileID, a.Ref}]
			if t == nil {
				continue
			}
			c := &Claim{
				ID:        a.PublicID,
				Author:    a.Author,
				ExpiresAt: a.ExpiresAt,
				CreatedAt: a.CreatedAt,
				Seq:       a.Seq,
			}
			claims[key{a.FileID, a.PublicID}] = c
			// Latest claim governs; earlier ones are superseded.
			if t.Claim == nil || later(c, t.Claim) {
				t.Claim = c
			}

		case models.AppendResponse:
			if t := tasks[key{a.FileID, a.Ref}]; t != nil {
				t.Responses++
			}

		case models.AppendCancel:
			if c := claims[key{a.FileID, a.Ref}]; c != nil {
				c.Cancelled = true
			}

		case models.AppendBlocked:
			if t := tasks[key{a.FileID, a.Ref}]; t != nil {
				t.Blocked = true
			}

		case models.AppendAnswer:
			// answer.ref names a blocked entry; unblocking is advisory and
			// does not change the four derived states.
		}
	}

	out := make([]*Task, 0, len(order))
	for _, k := range order {
		t := tasks[k]
		t.State = deriveState(t, now)
		out = append(out, t)
	}
	return out
}

func deriveState(t *Task, now time.Time) TaskState {
	if t.Responses > 0 {
		return StateCompleted
	}
	c := t.Claim
	if c == nil || c.Cancelled {
		return StatePending
	}
	if c.Active(now) {
		return StateClaimed
	}
	return StateStalled
}

func later(a, b *Claim) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.Seq > b.Seq
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// SortTasks orders tasks newest-first by creation.
func SortTasks(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Seq > tasks[j].Seq
	})
}
