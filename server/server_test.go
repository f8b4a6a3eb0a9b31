package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/existflow/ironnotes/internal/config"
	"github.com/existflow/ironnotes/internal/protocol"
	"github.com/existflow/ironnotes/internal/remote"
)

var alice = protocol.User{ID: "u1", Name: "alice"}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func createList(id int, name string) protocol.Action {
	return protocol.Action{ActionID: id, ActionType: protocol.ActionCreate,
		EntityDelta: &protocol.EntityDelta{Name: strPtr(name), EntityType: protocol.TypeGroup}}
}

func createTask(id int, list, name string) protocol.Action {
	return protocol.Action{ActionID: id, ActionType: protocol.ActionCreate, ListID: list,
		EntityDelta: &protocol.EntityDelta{Name: strPtr(name), EntityType: protocol.TypeTask}}
}

func apply(t *testing.T, e *Engine, actions ...protocol.Action) *protocol.Response {
	t.Helper()
	req := protocol.NewRequest(1)
	for _, a := range actions {
		req.Add(a)
	}
	resp, err := e.Apply(context.Background(), alice, req)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	return resp
}

func TestEngineCreateAndGetAll(t *testing.T) {
	e := NewEngine(NewMemoryStore())

	resp := apply(t, e, createList(1, "[MIUI_Notes]Work"))
	listID := resp.Results[0].NewID
	if listID == "" {
		t.Fatal("expected new list id")
	}
	resp = apply(t, e, createTask(2, listID, "buy milk"))
	taskID := resp.Results[0].NewID
	if resp.Results[0].ChildEntity.ListID != listID {
		t.Errorf("expected task in list, got %+v", resp.Results[0].ChildEntity)
	}

	all := apply(t, e, protocol.GetAllAction(3, 0, true))
	if len(all.Lists) != 1 || len(all.Tasks) != 1 || all.LatestSyncPoint != 2 {
		t.Fatalf("unexpected get_all: lists=%d tasks=%d point=%d", len(all.Lists), len(all.Tasks), all.LatestSyncPoint)
	}
	if all.User == nil || all.User.Name != "alice" {
		t.Errorf("expected user in response")
	}

	again := apply(t, e, protocol.GetAllAction(4, all.LatestSyncPoint, true))
	if len(again.Lists)+len(again.Tasks) != 0 {
		t.Errorf("expected empty incremental fetch")
	}

	apply(t, e, protocol.Action{ActionID: 5, ActionType: protocol.ActionUpdate, ID: taskID,
		EntityDelta: &protocol.EntityDelta{Name: strPtr("buy oat milk")}})
	inc := apply(t, e, protocol.GetAllAction(6, all.LatestSyncPoint, true))
	if len(inc.Tasks) != 1 {
		t.Fatalf("expected updated task in incremental fetch, got %d", len(inc.Tasks))
	}
	task, err := protocol.DecodeEntity(inc.Tasks[0], protocol.TypeTask)
	if err != nil || task.Name != "buy oat milk" {
		t.Errorf("unexpected task %+v, %v", task, err)
	}
}

func TestEngineLastModifiedIncreases(t *testing.T) {
	e := NewEngine(NewMemoryStore())
	fixed := time.UnixMilli(1000)
	e.now = func() time.Time { return fixed }

	resp := apply(t, e, createList(1, "[MIUI_Notes]A"))
	first := resp.Results[0].ChildEntity.LastModified
	resp = apply(t, e, protocol.Action{ActionID: 2, ActionType: protocol.ActionUpdate,
		ID: resp.Results[0].NewID, EntityDelta: &protocol.EntityDelta{Name: strPtr("[MIUI_Notes]B")}})
	if resp.Results[0].ChildEntity.LastModified <= first {
		t.Errorf("expected last_modified to increase, got %d then %d", first, resp.Results[0].ChildEntity.LastModified)
	}
}

func TestEngineDeleteListCascades(t *testing.T) {
	e := NewEngine(NewMemoryStore())
	listID := apply(t, e, createList(1, "[MIUI_Notes]Gone")).Results[0].NewID
	apply(t, e, createTask(2, listID, "a"), createTask(3, listID, "b"))

	apply(t, e, protocol.Action{ActionID: 4, ActionType: protocol.ActionUpdate, ID: listID,
		EntityDelta: &protocol.EntityDelta{Deleted: boolPtr(true)}})

	all := apply(t, e, protocol.GetAllAction(5, 0, true))
	for _, raw := range all.Tasks {
		task, _ := protocol.DecodeEntity(raw, protocol.TypeTask)
		if !task.Deleted {
			t.Errorf("expected task %s deleted with its list", task.ID)
		}
	}
	live := apply(t, e, protocol.GetAllAction(6, 0, false))
	if len(live.Lists)+len(live.Tasks) != 0 {
		t.Errorf("expected deleted entities hidden without get_deleted")
	}
}

func TestEngineMoveChecksSourceList(t *testing.T) {
	e := NewEngine(NewMemoryStore())
	a := apply(t, e, createList(1, "[MIUI_Notes]A")).Results[0].NewID
	b := apply(t, e, createList(2, "[MIUI_Notes]B")).Results[0].NewID
	task := apply(t, e, createTask(3, a, "t")).Results[0].NewID

	req := protocol.NewRequest(1)
	req.Add(protocol.MoveAction(4, task, b, a, ""))
	_, err := e.Apply(context.Background(), alice, req)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected request error for wrong source list, got %v", err)
	}

	resp := apply(t, e, protocol.MoveAction(5, task, a, b, ""))
	if resp.Results[0].ChildEntity.ListID != b {
		t.Errorf("expected task moved to %s, got %+v", b, resp.Results[0].ChildEntity)
	}
}

func TestEngineBatchIsAllOrNothing(t *testing.T) {
	e := NewEngine(NewMemoryStore())

	req := protocol.NewRequest(1)
	req.Add(createList(1, "[MIUI_Notes]Kept?"))
	req.Add(protocol.Action{ActionID: 2, ActionType: protocol.ActionUpdate, ID: "missing",
		EntityDelta: &protocol.EntityDelta{Name: strPtr("x")}})
	if _, err := e.Apply(context.Background(), alice, req); err == nil {
		t.Fatal("expected batch to fail")
	}

	all := apply(t, e, protocol.GetAllAction(3, 0, true))
	if len(all.Lists) != 0 || all.LatestSyncPoint != 0 {
		t.Errorf("expected nothing applied, got %d lists at point %d", len(all.Lists), all.LatestSyncPoint)
	}
}

func TestEngineRejectsTaskInUnknownList(t *testing.T) {
	e := NewEngine(NewMemoryStore())
	req := protocol.NewRequest(1)
	req.Add(createTask(1, "nope", "t"))
	if _, err := e.Apply(context.Background(), alice, req); err == nil {
		t.Error("expected error for unknown list")
	}
}

func newTestServer(t *testing.T, perMin int) (*Server, *httptest.Server) {
	t.Helper()
	s := New(NewMemoryStore(), &config.ServerConfig{RateLimitPerMin: perMin, SessionTTL: time.Hour})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHTTPSessionAndActions(t *testing.T) {
	_, ts := newTestServer(t, 0)
	ctx := context.Background()

	auth := remote.NewAuth(ts.URL, time.Second)
	if _, err := auth.Register(ctx, "alice", "alice@example.com", "short"); err == nil {
		t.Error("expected short password rejected")
	}
	session, err := auth.Register(ctx, "alice", "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := auth.Register(ctx, "alice", "alice@example.com", "password123"); err == nil {
		t.Error("expected duplicate user rejected")
	}
	if _, err := auth.Login(ctx, "alice", "wrong-password"); err == nil {
		t.Error("expected bad password rejected")
	}

	tr := remote.NewHTTPTransport(ts.URL, session.Token, time.Second)
	user, err := tr.Login(ctx)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.Name != "alice" || user.ID != session.UserID {
		t.Errorf("unexpected user %+v", user)
	}

	c := remote.NewClient(tr, 0)
	r, err := c.Create(ctx, createList(c.NextActionID(), "[MIUI_Notes]Work"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	snap, err := c.GetAll(ctx, 0)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(snap.Lists) != 1 || snap.Lists[0].ID != r.NewID {
		t.Errorf("expected created list in snapshot, got %+v", snap.Lists)
	}

	if err := auth.Logout(ctx, session.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := tr.Login(ctx); err == nil {
		t.Error("expected revoked token rejected")
	}
}

func TestHTTPRequiresAuth(t *testing.T) {
	_, ts := newTestServer(t, 0)

	body, _ := json.Marshal(protocol.NewRequest(1))
	resp, err := http.Post(ts.URL+"/api/v1/actions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHTTPRateLimit(t *testing.T) {
	_, ts := newTestServer(t, 10)

	limited := false
	for i := 0; i < 5; i++ {
		resp, err := http.Post(ts.URL+"/api/v1/login", "application/json", bytes.NewReader([]byte(`{}`)))
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("expected rate limit to trip")
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, 0)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
