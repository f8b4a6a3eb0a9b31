package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/protocol"
	"github.com/existflow/ironnotes/internal/syncerr"
)

// DefaultBatchSize is the number of queued actions sent per request
const DefaultBatchSize = 10

// ResultFunc receives the results of a queued group, in the order the
// actions were queued
type ResultFunc func(results []protocol.Result) error

type group struct {
	actions  []protocol.Action
	onResult ResultFunc
}

// Client submits actions for one sync session. Creates go out at once;
// everything else is queued and sent in batches.
type Client struct {
	transport Transport
	batchSize int
	seq       protocol.Sequence
	cancelled func() bool

	queue    []group
	queued   int
	mutating int
}

// NewClient creates a session client. batchSize <= 0 selects DefaultBatchSize.
func NewClient(t Transport, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Client{transport: t, batchSize: batchSize}
}

// SetCancelled installs a check polled before every request of a flush
func (c *Client) SetCancelled(f func() bool) {
	c.cancelled = f
}

func (c *Client) checkCancelled(ctx context.Context) error {
	if c.cancelled != nil && c.cancelled() {
		return syncerr.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrCancelled, err)
	}
	return nil
}

// Login checks the session with the remote service
func (c *Client) Login(ctx context.Context) (protocol.User, error) {
	return c.transport.Login(ctx)
}

// NextActionID returns the next action id of the session
func (c *Client) NextActionID() int {
	return c.seq.Next()
}

// MutatingActions returns how many state-changing actions were submitted
func (c *Client) MutatingActions() int {
	return c.mutating
}

// Create submits a create action on its own. The result must carry the new id.
func (c *Client) Create(ctx context.Context, a protocol.Action) (protocol.Result, error) {
	if a.ActionType != protocol.ActionCreate {
		return protocol.Result{}, syncerr.Action("create", "action %d is a %s", a.ActionID, a.ActionType)
	}

	results, err := c.post(ctx, []protocol.Action{a})
	if err != nil {
		return protocol.Result{}, err
	}
	r := results[0]
	if r.NewID == "" {
		return protocol.Result{}, syncerr.Action("create", "action %d: no %s in result", a.ActionID, protocol.FieldNewID)
	}
	return r, nil
}

// Queue adds actions to the pending batch. Actions queued together are
// always sent in the same request. onResult runs after that request succeeds.
func (c *Client) Queue(onResult ResultFunc, actions ...protocol.Action) {
	if len(actions) == 0 {
		return
	}
	c.queue = append(c.queue, group{actions: actions, onResult: onResult})
	c.queued += len(actions)
}

// Pending returns the number of queued actions
func (c *Client) Pending() int {
	return c.queued
}

// Full reports whether the pending batch should be flushed
func (c *Client) Full() bool {
	return c.queued >= c.batchSize
}

// Flush sends the queued actions and runs their callbacks. Groups are packed
// into requests of at most batchSize actions; a group larger than that goes
// out alone. The first failing request or callback stops the flush, as does
// cancellation seen before a request; the rest of the queue is dropped.
func (c *Client) Flush(ctx context.Context) error {
	for len(c.queue) > 0 {
		if err := c.checkCancelled(ctx); err != nil {
			c.queue, c.queued = nil, 0
			return err
		}
		n, size := 0, 0
		for n < len(c.queue) {
			next := len(c.queue[n].actions)
			if n > 0 && size+next > c.batchSize {
				break
			}
			size += next
			n++
		}

		batch := c.queue[:n]
		c.queue = c.queue[n:]
		c.queued -= size

		var actions []protocol.Action
		for _, g := range batch {
			actions = append(actions, g.actions...)
		}

		results, err := c.post(ctx, actions)
		if err != nil {
			c.queue, c.queued = nil, 0
			return err
		}

		i := 0
		for _, g := range batch {
			rs := results[i : i+len(g.actions)]
			i += len(g.actions)
			if g.onResult == nil {
				continue
			}
			if err := g.onResult(rs); err != nil {
				c.queue, c.queued = nil, 0
				return err
			}
		}
	}
	return nil
}

// post sends actions in one request and returns their results in order
func (c *Client) post(ctx context.Context, actions []protocol.Action) ([]protocol.Result, error) {
	req := protocol.NewRequest(ClientVersion)
	for _, a := range actions {
		req.Add(a)
	}
	if err := req.Validate(); err != nil {
		return nil, syncerr.WrapAction("post", err)
	}

	resp, err := c.transport.Post(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]protocol.Result, len(actions))
	for i, a := range actions {
		r, ok := resp.ResultFor(a.ActionID)
		if !ok {
			return nil, syncerr.Action("post", "no result for action %d", a.ActionID)
		}
		results[i] = *r
		if a.Mutating() {
			c.mutating++
		}
	}
	logger.Debug("Batch submitted", logger.F("actions", len(actions)))
	return results, nil
}

// InvalidEntity is a remote entity that could not be decoded
type InvalidEntity struct {
	ID  string
	Err error
}

// Snapshot is the remote state returned by GetAll
type Snapshot struct {
	User            protocol.User
	Lists           []protocol.Entity
	Tasks           []protocol.Entity
	Invalid         []InvalidEntity
	LatestSyncPoint int64
}

// GetAll fetches every list and task changed after since, deleted ones included
func (c *Client) GetAll(ctx context.Context, since int64) (*Snapshot, error) {
	a := protocol.GetAllAction(c.NextActionID(), since, true)
	req := protocol.NewRequest(ClientVersion)
	req.Add(a)

	resp, err := c.transport.Post(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, ok := resp.ResultFor(a.ActionID); !ok {
		return nil, syncerr.Action("get_all", "no result for action %d", a.ActionID)
	}

	snap := &Snapshot{LatestSyncPoint: resp.LatestSyncPoint}
	if resp.User != nil {
		snap.User = *resp.User
	}
	snap.Lists = decodeEntities(resp.Lists, protocol.TypeGroup, &snap.Invalid)
	snap.Tasks = decodeEntities(resp.Tasks, protocol.TypeTask, &snap.Invalid)

	logger.Debug("Fetched remote state",
		logger.F("lists", len(snap.Lists)),
		logger.F("tasks", len(snap.Tasks)),
		logger.F("invalid", len(snap.Invalid)),
		logger.F("since", since),
		logger.F("latest_sync_point", snap.LatestSyncPoint))
	return snap, nil
}

func decodeEntities(raws []json.RawMessage, kind string, invalid *[]InvalidEntity) []protocol.Entity {
	out := make([]protocol.Entity, 0, len(raws))
	for _, raw := range raws {
		e, err := protocol.DecodeEntity(raw, kind)
		if err != nil {
			id := protocol.PeekID(raw)
			var ee *protocol.EntityError
			if errors.As(err, &ee) && ee.ID != "" {
				id = ee.ID
			}
			*invalid = append(*invalid, InvalidEntity{ID: id, Err: err})
			continue
		}
		out = append(out, e)
	}
	return out
}
