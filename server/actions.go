package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/protocol"
)

// RequestError is a batch the engine refused. None of its actions are applied.
type RequestError struct {
	ActionID int
	Msg      string
}

func (e *RequestError) Error() string {
	if e.ActionID == 0 {
		return e.Msg
	}
	return fmt.Sprintf("action %d: %s", e.ActionID, e.Msg)
}

func refuse(a *protocol.Action, format string, args ...any) error {
	return &RequestError{ActionID: a.ActionID, Msg: fmt.Sprintf(format, args...)}
}

// Engine applies action batches to a Store
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates an engine over store
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Apply runs every action of req for user in one transaction
func (e *Engine) Apply(ctx context.Context, user protocol.User, req *protocol.Request) (*protocol.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, &RequestError{Msg: err.Error()}
	}

	resp := &protocol.Response{Results: make([]protocol.Result, 0, len(req.ActionList))}
	err := e.store.Update(ctx, user.ID, func(tx EntityTx) error {
		for i := range req.ActionList {
			a := &req.ActionList[i]
			result, err := e.apply(ctx, tx, a, resp)
			if err != nil {
				return err
			}
			resp.Results = append(resp.Results, result)
		}
		resp.LatestSyncPoint = tx.Revision()
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.User = &user
	return resp, nil
}

func (e *Engine) apply(ctx context.Context, tx EntityTx, a *protocol.Action, resp *protocol.Response) (protocol.Result, error) {
	switch a.ActionType {
	case protocol.ActionCreate:
		return e.create(ctx, tx, a)
	case protocol.ActionUpdate:
		return e.update(ctx, tx, a)
	case protocol.ActionMove:
		return e.move(ctx, tx, a)
	case protocol.ActionGetAll:
		return e.getAll(ctx, tx, a, resp)
	}
	return protocol.Result{}, refuse(a, "unknown action type %q", a.ActionType)
}

// stamp returns a last_modified newer than prev
func (e *Engine) stamp(prev int64) int64 {
	now := e.now().UnixMilli()
	if now <= prev {
		return prev + 1
	}
	return now
}

func (e *Engine) put(ctx context.Context, tx EntityTx, r *Record) error {
	r.LastModified = e.stamp(r.LastModified)
	r.Revision = tx.NextRevision()
	return tx.Put(ctx, *r)
}

func liveList(ctx context.Context, tx EntityTx, a *protocol.Action, id string) error {
	list, err := tx.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return refuse(a, "unknown list %s", id)
	}
	if err != nil {
		return err
	}
	if list.Type != protocol.TypeGroup || list.Deleted {
		return refuse(a, "%s is not a live list", id)
	}
	return nil
}

func (e *Engine) create(ctx context.Context, tx EntityTx, a *protocol.Action) (protocol.Result, error) {
	d := a.EntityDelta
	r := Record{Entity: protocol.Entity{
		ID:        uuid.NewString(),
		Type:      d.EntityType,
		CreatorID: d.CreatorID,
	}}
	if d.Name != nil {
		r.Name = *d.Name
	}
	if d.Notes != nil {
		r.Notes = *d.Notes
	}
	if d.Completed != nil {
		r.Completed = *d.Completed
	}
	if a.Index != nil {
		r.Index = *a.Index
	}

	if r.Type == protocol.TypeTask {
		if err := liveList(ctx, tx, a, a.ListID); err != nil {
			return protocol.Result{}, err
		}
		r.ListID = a.ListID
		r.ParentID = a.ParentID
		if r.ParentID == "" {
			r.ParentID = a.ListID
		}
		r.PriorSiblingID = a.PriorSiblingID
	}

	if err := e.put(ctx, tx, &r); err != nil {
		return protocol.Result{}, err
	}
	return protocol.Result{ActionID: a.ActionID, NewID: r.ID, ChildEntity: &r.Entity}, nil
}

func (e *Engine) update(ctx context.Context, tx EntityTx, a *protocol.Action) (protocol.Result, error) {
	r, err := tx.Get(ctx, a.ID)
	if errors.Is(err, ErrNotFound) {
		return protocol.Result{}, refuse(a, "unknown entity %s", a.ID)
	}
	if err != nil {
		return protocol.Result{}, err
	}

	d := a.EntityDelta
	wasDeleted := r.Deleted
	if d != nil {
		if d.Name != nil {
			r.Name = *d.Name
		}
		if d.Notes != nil {
			r.Notes = *d.Notes
		}
		if d.Completed != nil {
			r.Completed = *d.Completed
		}
		if d.Deleted != nil {
			r.Deleted = *d.Deleted
		}
	}
	if err := e.put(ctx, tx, &r); err != nil {
		return protocol.Result{}, err
	}

	if r.Type == protocol.TypeGroup && r.Deleted && !wasDeleted {
		tasks, err := tx.TasksIn(ctx, r.ID)
		if err != nil {
			return protocol.Result{}, err
		}
		for _, t := range tasks {
			if t.Deleted {
				continue
			}
			t.Deleted = true
			if err := e.put(ctx, tx, &t); err != nil {
				return protocol.Result{}, err
			}
		}
	}
	return protocol.Result{ActionID: a.ActionID, ChildEntity: &r.Entity}, nil
}

func (e *Engine) move(ctx context.Context, tx EntityTx, a *protocol.Action) (protocol.Result, error) {
	r, err := tx.Get(ctx, a.ID)
	if errors.Is(err, ErrNotFound) {
		return protocol.Result{}, refuse(a, "unknown entity %s", a.ID)
	}
	if err != nil {
		return protocol.Result{}, err
	}
	if r.Type != protocol.TypeTask {
		return protocol.Result{}, refuse(a, "only tasks can move")
	}
	if r.ListID != a.SourceList {
		return protocol.Result{}, refuse(a, "task %s is not in list %s", a.ID, a.SourceList)
	}
	if err := liveList(ctx, tx, a, a.DestList); err != nil {
		return protocol.Result{}, err
	}

	r.ListID = a.DestList
	r.ParentID = a.DestParent
	if r.ParentID == "" {
		r.ParentID = a.DestList
	}
	r.PriorSiblingID = a.PriorSiblingID
	if err := e.put(ctx, tx, &r); err != nil {
		return protocol.Result{}, err
	}
	return protocol.Result{ActionID: a.ActionID, ChildEntity: &r.Entity}, nil
}

func (e *Engine) getAll(ctx context.Context, tx EntityTx, a *protocol.Action, resp *protocol.Response) (protocol.Result, error) {
	records, err := tx.Since(ctx, a.LatestSyncPoint)
	if err != nil {
		return protocol.Result{}, err
	}
	for _, r := range records {
		if r.Deleted && !a.GetDeleted {
			continue
		}
		if r.Type == protocol.TypeGroup {
			resp.Lists = append(resp.Lists, protocol.RawEntity(r.Entity))
		} else {
			resp.Tasks = append(resp.Tasks, protocol.RawEntity(r.Entity))
		}
	}
	logger.Debug("get_all served",
		logger.F("since", a.LatestSyncPoint),
		logger.F("lists", len(resp.Lists)),
		logger.F("tasks", len(resp.Tasks)))
	return protocol.Result{ActionID: a.ActionID}, nil
}
