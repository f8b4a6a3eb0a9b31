package sync

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/node"
	"github.com/existflow/ironnotes/internal/protocol"
	"github.com/existflow/ironnotes/internal/syncerr"
	"github.com/existflow/ironnotes/server"
)

var alice = protocol.User{ID: "u1", Name: "alice"}

// engineTransport routes requests straight into a server engine
type engineTransport struct {
	engine *server.Engine
	user   protocol.User
	posts  int
	failAt int // fail this post with a network error; 0 never

	beforePost func(*protocol.Request)
	afterPost  func(*protocol.Request, *protocol.Response)
	entered    chan struct{} // when set, Login signals it and waits on block
	block      chan struct{}
}

func (e *engineTransport) Login(ctx context.Context) (protocol.User, error) {
	if e.entered != nil {
		e.entered <- struct{}{}
		select {
		case <-e.block:
		case <-ctx.Done():
			return protocol.User{}, syncerr.Network("login", ctx.Err())
		}
	}
	return e.user, nil
}

func (e *engineTransport) Post(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	e.posts++
	if e.failAt == e.posts {
		return nil, syncerr.Network("post", errors.New("connection reset"))
	}
	if e.beforePost != nil {
		e.beforePost(req)
	}
	resp, err := e.engine.Apply(ctx, e.user, req)
	if err != nil {
		return nil, syncerr.WrapAction("post", err)
	}
	// Round-trip through JSON the way the HTTP transport does.
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	out, err := protocol.DecodeResponse(data)
	if err != nil {
		return nil, err
	}
	if e.afterPost != nil {
		e.afterPost(req, out)
	}
	return out, nil
}

type device struct {
	db        *db.DB
	transport *engineTransport
	manager   *Manager
}

func newDevice(t *testing.T, engine *server.Engine) *device {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	tr := &engineTransport{engine: engine, user: alice}
	return &device{
		db:        d,
		transport: tr,
		manager:   NewManager(d, tr, Options{BatchSize: 3, Server: "test"}),
	}
}

func (d *device) sync(t *testing.T) *Result {
	t.Helper()
	res, err := d.manager.Sync(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	return res
}

func remoteState(t *testing.T, engine *server.Engine) (lists, tasks []protocol.Entity) {
	t.Helper()
	req := protocol.NewRequest(1)
	req.Add(protocol.GetAllAction(1, 0, false))
	resp, err := engine.Apply(context.Background(), alice, req)
	if err != nil {
		t.Fatalf("get_all failed: %v", err)
	}
	for _, raw := range resp.Lists {
		e, err := protocol.DecodeEntity(raw, protocol.TypeGroup)
		if err != nil {
			t.Fatalf("decode list: %v", err)
		}
		lists = append(lists, e)
	}
	for _, raw := range resp.Tasks {
		e, err := protocol.DecodeEntity(raw, protocol.TypeTask)
		if err != nil {
			t.Fatalf("decode task: %v", err)
		}
		tasks = append(tasks, e)
	}
	return lists, tasks
}

func findByName(es []protocol.Entity, name string) *protocol.Entity {
	for i := range es {
		if es[i].Name == name {
			return &es[i]
		}
	}
	return nil
}

func mustNote(t *testing.T, d *db.DB, id int64) *model.Note {
	t.Helper()
	n, err := d.GetNote(context.Background(), id)
	if err != nil {
		t.Fatalf("GetNote(%d) failed: %v", id, err)
	}
	return n
}

func savedPoint(t *testing.T, d *db.DB) int64 {
	t.Helper()
	v, err := d.GetState(context.Background(), StateSyncPoint)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	point, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		t.Fatalf("sync point %q not saved: %v", v, err)
	}
	return point
}

// fetchLog holds the get_all responses a transport returned, in order
type fetchLog []*protocol.Response

func recordFetches(tr *engineTransport) *fetchLog {
	log := &fetchLog{}
	tr.afterPost = func(req *protocol.Request, resp *protocol.Response) {
		if len(req.ActionList) == 1 && req.ActionList[0].ActionType == protocol.ActionGetAll {
			*log = append(*log, resp)
		}
	}
	return log
}

// seed creates folder Work holding "buy milk" plus "hello" in the root folder
func seed(t *testing.T, d *db.DB) (work, milk, hello int64) {
	t.Helper()
	ctx := context.Background()
	var err error
	if work, err = d.CreateFolder(ctx, "Work"); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if milk, err = d.CreateNote(ctx, work, "buy milk"); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	if hello, err = d.CreateNote(ctx, model.RootFolderID, "hello"); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	return work, milk, hello
}

func TestSyncUploadsLocalNotes(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	fetched := recordFetches(a.transport)
	work, milk, _ := seed(t, a.db)

	res := a.sync(t)
	if res.Account != "alice" {
		t.Errorf("expected account alice, got %q", res.Account)
	}
	// root, call records, Work, and two notes
	if res.Decisions[node.ActionAddRemote] != 5 {
		t.Errorf("expected 5 ADD_REMOTE, got %v", res.Decisions)
	}

	n := mustNote(t, a.db, milk)
	if n.GTaskID == "" || n.LocalModified || n.OriginParentID != work {
		t.Errorf("expected note bound and clean, got %+v", n)
	}

	lists, tasks := remoteState(t, engine)
	workList := findByName(lists, protocol.FolderPrefix+"Work")
	if workList == nil || mustNote(t, a.db, work).GTaskID != workList.ID {
		t.Fatalf("expected folder bound to its list, lists=%+v", lists)
	}
	if findByName(lists, protocol.FolderPrefix+protocol.FolderDefault) == nil {
		t.Error("expected root folder list")
	}
	if findByName(lists, protocol.FolderPrefix+protocol.FolderMeta) == nil {
		t.Error("expected metadata list")
	}
	task := findByName(tasks, "buy milk")
	if task == nil || task.ID != n.GTaskID || task.ListID != workList.ID {
		t.Errorf("expected task in Work list, got %+v", task)
	}
	if n.SyncID != task.LastModified {
		t.Errorf("expected sync_id %d to match remote last_modified %d", n.SyncID, task.LastModified)
	}

	// The cursor saved is the one the session fetched with, so writes made
	// during the session are picked up again by the next fetch.
	if got := savedPoint(t, a.db); got != (*fetched)[0].LatestSyncPoint {
		t.Errorf("expected saved point %d from the fetch, got %d", (*fetched)[0].LatestSyncPoint, got)
	}
}

func TestSyncPointAdvancesIncrementally(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	fetched := recordFetches(a.transport)
	seed(t, a.db)

	a.sync(t)
	a.sync(t)
	point := savedPoint(t, a.db)
	if point <= 0 || point != (*fetched)[1].LatestSyncPoint {
		t.Fatalf("expected second pass to save %d, got %d", (*fetched)[1].LatestSyncPoint, point)
	}

	res := a.sync(t)
	if len(*fetched) != 3 {
		t.Fatalf("expected three fetches, got %d", len(*fetched))
	}
	third := (*fetched)[2]
	if len(third.Lists) != 0 || len(third.Tasks) != 0 {
		t.Errorf("expected an empty incremental fetch, got %d lists and %d tasks", len(third.Lists), len(third.Tasks))
	}
	if res.Actions != 0 {
		t.Errorf("expected an idle pass, got %d actions", res.Actions)
	}
	if got := savedPoint(t, a.db); got != point {
		t.Errorf("expected point %d kept by an idle pass, got %d", point, got)
	}
}

func TestSecondSyncIsIdempotent(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	seed(t, a.db)
	a.sync(t)

	for pass := 0; pass < 2; pass++ {
		res := a.sync(t)
		if res.Actions != 0 {
			t.Errorf("pass %d: expected no mutating actions, got %d", pass, res.Actions)
		}
		for action, count := range res.Decisions {
			if action != node.ActionNone && count > 0 {
				t.Errorf("pass %d: expected only NONE, got %v", pass, res.Decisions)
			}
		}
	}
}

func TestSecondDeviceDownloadsAndRebinds(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	seed(t, a.db)
	a.sync(t)
	listsBefore, _ := remoteState(t, engine)

	b := newDevice(t, engine)
	res := b.sync(t)
	if res.Downloaded < 3 {
		t.Errorf("expected folder and notes downloaded, got %+v", res)
	}

	ctx := context.Background()
	work, err := b.db.FolderByName(ctx, "Work")
	if err != nil {
		t.Fatalf("expected Work folder on second device: %v", err)
	}
	children, err := b.db.ListChildren(ctx, work.ID)
	if err != nil || len(children) != 1 {
		t.Fatalf("expected one note in Work, got %d (%v)", len(children), err)
	}
	if text, _ := b.db.NoteText(ctx, children[0].ID); text != "buy milk" {
		t.Errorf("expected downloaded text, got %q", text)
	}
	if children[0].LocalModified {
		t.Error("downloaded note must not be marked modified")
	}

	root := mustNote(t, b.db, model.RootFolderID)
	if root.GTaskID == "" {
		t.Error("expected root folder bound to the existing Default list")
	}
	listsAfter, _ := remoteState(t, engine)
	if len(listsAfter) != len(listsBefore) {
		t.Errorf("expected no duplicate lists, had %d now %d", len(listsBefore), len(listsAfter))
	}

	if res := b.sync(t); res.Actions != 0 {
		t.Errorf("expected second device to settle, got %d actions", res.Actions)
	}
}

func TestRemoteDeletionRemovesLocalRow(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	_, milk, _ := seed(t, a.db)
	a.sync(t)

	b := newDevice(t, engine)
	b.sync(t)
	ctx := context.Background()
	work, _ := b.db.FolderByName(ctx, "Work")
	children, _ := b.db.ListChildren(ctx, work.ID)
	if err := b.db.TrashNote(ctx, children[0].ID); err != nil {
		t.Fatalf("TrashNote failed: %v", err)
	}

	res := b.sync(t)
	if res.Decisions[node.ActionDelRemote] != 1 {
		t.Errorf("expected DEL_REMOTE, got %v", res.Decisions)
	}
	if _, err := b.db.GetNote(ctx, children[0].ID); !db.IsNotFound(err) {
		t.Errorf("expected trashed row removed after upload, got %v", err)
	}

	res = a.sync(t)
	if res.Decisions[node.ActionDelLocal] != 1 || res.Deleted != 1 {
		t.Errorf("expected DEL_LOCAL, got %+v", res)
	}
	if _, err := a.db.GetNote(ctx, milk); !db.IsNotFound(err) {
		t.Errorf("expected note deleted on first device, got %v", err)
	}
}

func TestConflictNewerRemoteWins(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	seed(t, a.db)
	a.sync(t)
	b := newDevice(t, engine)
	b.sync(t)

	ctx := context.Background()
	aWork, _ := a.db.FolderByName(ctx, "Work")
	aNotes, _ := a.db.ListChildren(ctx, aWork.ID)
	if err := a.db.EditNote(ctx, aNotes[0].ID, "buy oat milk"); err != nil {
		t.Fatalf("EditNote failed: %v", err)
	}
	a.sync(t)

	bWork, _ := b.db.FolderByName(ctx, "Work")
	bNotes, _ := b.db.ListChildren(ctx, bWork.ID)
	id := bNotes[0].ID
	if err := b.db.EditNote(ctx, id, "buy soy milk"); err != nil {
		t.Fatalf("EditNote failed: %v", err)
	}
	// Make the local edit older than the remote one.
	if _, err := b.db.UpdateNote(ctx, id, db.Values{"modified_date": int64(1)}, db.NoGuard); err != nil {
		t.Fatalf("UpdateNote failed: %v", err)
	}

	res := b.sync(t)
	if res.Conflicts != 1 || res.Decisions[node.ActionUpdateConflict] != 1 {
		t.Fatalf("expected one conflict, got %+v", res)
	}
	if text, _ := b.db.NoteText(ctx, id); text != "buy oat milk" {
		t.Errorf("expected newer remote text, got %q", text)
	}
	if mustNote(t, b.db, id).LocalModified {
		t.Error("expected resolved note clean")
	}
}

func TestConflictNewerLocalWins(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	seed(t, a.db)
	a.sync(t)
	b := newDevice(t, engine)
	b.sync(t)

	ctx := context.Background()
	aWork, _ := a.db.FolderByName(ctx, "Work")
	aNotes, _ := a.db.ListChildren(ctx, aWork.ID)
	a.db.EditNote(ctx, aNotes[0].ID, "buy oat milk")
	a.sync(t)

	bWork, _ := b.db.FolderByName(ctx, "Work")
	bNotes, _ := b.db.ListChildren(ctx, bWork.ID)
	id := bNotes[0].ID
	b.db.EditNote(ctx, id, "buy soy milk")
	future := time.Now().Add(time.Hour).UnixMilli()
	b.db.UpdateNote(ctx, id, db.Values{"modified_date": future}, db.NoGuard)

	res := b.sync(t)
	if res.Conflicts != 1 {
		t.Fatalf("expected one conflict, got %+v", res)
	}
	_, tasks := remoteState(t, engine)
	if findByName(tasks, "buy soy milk") == nil {
		t.Errorf("expected newer local text uploaded, got %+v", tasks)
	}
}

func TestMovePropagates(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	_, milk, _ := seed(t, a.db)
	a.sync(t)
	b := newDevice(t, engine)
	b.sync(t)

	ctx := context.Background()
	if err := a.db.MoveNote(ctx, milk, model.RootFolderID); err != nil {
		t.Fatalf("MoveNote failed: %v", err)
	}
	a.sync(t)
	if n := mustNote(t, a.db, milk); n.OriginParentID != model.RootFolderID {
		t.Errorf("expected origin parent updated, got %d", n.OriginParentID)
	}

	lists, tasks := remoteState(t, engine)
	task := findByName(tasks, "buy milk")
	def := findByName(lists, protocol.FolderPrefix+protocol.FolderDefault)
	if task == nil || def == nil || task.ListID != def.ID {
		t.Fatalf("expected task moved to Default list, got %+v", task)
	}

	b.sync(t)
	found := false
	children, _ := b.db.ListChildren(ctx, model.RootFolderID)
	for _, c := range children {
		if text, _ := b.db.NoteText(ctx, c.ID); text == "buy milk" {
			found = true
		}
	}
	if !found {
		t.Error("expected note moved to root on second device")
	}
}

func TestForeignListsIgnored(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	name := "Groceries"
	req := protocol.NewRequest(1)
	req.Add(protocol.Action{ActionID: 1, ActionType: protocol.ActionCreate,
		EntityDelta: &protocol.EntityDelta{Name: &name, EntityType: protocol.TypeGroup}})
	if _, err := engine.Apply(context.Background(), alice, req); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	a := newDevice(t, engine)
	a.sync(t)
	if _, err := a.db.FolderByName(context.Background(), name); !db.IsNotFound(err) {
		t.Errorf("expected foreign list ignored, got %v", err)
	}
}

func TestVersionGuardMissKeepsLocalEdit(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	_, milk, _ := seed(t, a.db)
	a.sync(t)

	ctx := context.Background()
	a.db.EditNote(ctx, milk, "v2")
	gid := mustNote(t, a.db, milk).GTaskID

	edited := false
	a.transport.beforePost = func(req *protocol.Request) {
		for _, act := range req.ActionList {
			if act.ActionType == protocol.ActionUpdate && act.ID == gid && !edited {
				edited = true
				// The user edits again while the upload is in flight.
				if err := a.db.EditNote(ctx, milk, "v3"); err != nil {
					t.Errorf("EditNote failed: %v", err)
				}
			}
		}
	}

	res := a.sync(t)
	if !edited || res.Skipped != 1 {
		t.Fatalf("expected one guard miss, edited=%v res=%+v", edited, res)
	}
	if !mustNote(t, a.db, milk).LocalModified {
		t.Error("expected the newer edit to stay pending")
	}

	a.transport.beforePost = nil
	a.sync(t)
	_, tasks := remoteState(t, engine)
	if findByName(tasks, "v3") == nil {
		t.Errorf("expected newer edit uploaded on the next pass, got %+v", tasks)
	}
	if mustNote(t, a.db, milk).LocalModified {
		t.Error("expected note clean after upload")
	}
}

func TestInvalidEntityIsSkipped(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	_, milk, hello := seed(t, a.db)
	a.sync(t)

	ctx := context.Background()
	gid := mustNote(t, a.db, milk).GTaskID
	a.transport.afterPost = func(req *protocol.Request, resp *protocol.Response) {
		if req.ActionList[0].ActionType == protocol.ActionGetAll {
			resp.Tasks = append(resp.Tasks, json.RawMessage(`{"id":"`+gid+`","type":"TASK","last_modified":1}`))
		}
	}
	a.db.EditNote(ctx, hello, "hello again")

	res := a.sync(t)
	if res.Decisions[node.ActionError] != 1 || res.Errors < 1 {
		t.Errorf("expected malformed entity to yield ERROR, got %+v", res)
	}
	_, tasks := remoteState(t, engine)
	if findByName(tasks, "hello again") == nil {
		t.Error("expected other nodes still synchronized")
	}
}

func TestAccountMismatchFails(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	a.sync(t)

	a.transport.user = protocol.User{ID: "u2", Name: "bob"}
	_, err := a.manager.Sync(context.Background(), nil, nil)
	if !syncerr.IsAction(err) {
		t.Errorf("expected action failure for another account, got %v", err)
	}
}

func TestNetworkFailureKeepsSyncPoint(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	seed(t, a.db)
	a.transport.failAt = 1

	out := NewRunner(a.manager).Run(context.Background())
	if out.State != StateNetworkError {
		t.Fatalf("expected network error, got %v (%v)", out.State, out.Err)
	}
	if !strings.Contains(out.Message(), "cannot reach") {
		t.Errorf("unexpected message %q", out.Message())
	}
	if point, _ := a.db.GetState(context.Background(), StateSyncPoint); point != "" {
		t.Errorf("expected no sync point after failure, got %q", point)
	}
}

func TestCancelLeavesRowsConsistent(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	ctx := context.Background()
	work, _, _ := seed(t, a.db)
	for _, text := range []string{"one", "two", "three", "four"} {
		a.db.CreateNote(ctx, work, text)
	}

	var r *Runner
	r = NewRunner(a.manager, WithProgress(func(status string) {
		if status == "Synchronizing notes" {
			r.Cancel()
		}
	}))
	out := r.Run(ctx)
	if out.State != StateCancelled || out.Message() != "Sync cancelled" {
		t.Fatalf("expected cancelled, got %v (%v)", out.State, out.Err)
	}

	notes, _ := a.db.ListSyncNotes(ctx)
	for _, n := range notes {
		if n.GTaskID != "" && n.LocalModified {
			t.Errorf("note %d left half synced: %+v", n.ID, n)
		}
		if n.GTaskID == "" && !n.LocalModified {
			t.Errorf("note %d lost its pending edit", n.ID)
		}
	}
	if mustNote(t, a.db, work).GTaskID == "" {
		t.Error("expected folders committed before cancellation")
	}
	if point, _ := a.db.GetState(ctx, StateSyncPoint); point != "" {
		t.Errorf("expected no sync point after cancellation, got %q", point)
	}

	if res := a.sync(t); res.Uploaded != 6 {
		t.Errorf("expected remaining notes uploaded on the next pass, got %+v", res)
	}
}

func TestCancelBetweenCreatesResumes(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	ctx := context.Background()
	work, milk, hello := seed(t, a.db)
	a.sync(t)

	for id, text := range map[int64]string{milk: "buy oat milk", hello: "hello there"} {
		if err := a.db.EditNote(ctx, id, text); err != nil {
			t.Fatalf("EditNote failed: %v", err)
		}
	}
	for _, text := range []string{"one", "two", "three", "four"} {
		if _, err := a.db.CreateNote(ctx, work, text); err != nil {
			t.Fatalf("CreateNote failed: %v", err)
		}
	}

	var r *Runner
	creates := 0
	a.transport.afterPost = func(req *protocol.Request, _ *protocol.Response) {
		if len(req.ActionList) == 1 && req.ActionList[0].ActionType == protocol.ActionCreate {
			creates++
			if creates == 2 {
				r.Cancel()
			}
		}
	}
	r = NewRunner(a.manager)
	out := r.Run(ctx)
	if out.State != StateCancelled {
		t.Fatalf("expected cancelled, got %v (%v)", out.State, out.Err)
	}
	if out.Result == nil || out.Result.Uploaded != 2 {
		t.Fatalf("expected two creates before stopping, got %+v", out.Result)
	}

	notes, _ := a.db.ListSyncNotes(ctx)
	bound, dirty := 0, 0
	for _, n := range notes {
		if n.Type != model.TypeNote {
			continue
		}
		if n.GTaskID == "" {
			if !n.LocalModified {
				t.Errorf("note %d lost its pending create", n.ID)
			}
			continue
		}
		if n.LocalModified {
			dirty++
		} else {
			bound++
		}
	}
	// The two new notes that went out are clean; the two edits never left.
	if bound != 2 || dirty != 2 {
		t.Errorf("expected 2 clean and 2 dirty bound notes, got %d and %d", bound, dirty)
	}
	for _, id := range []int64{milk, hello} {
		if !mustNote(t, a.db, id).LocalModified {
			t.Errorf("expected edit of note %d still pending", id)
		}
	}

	a.transport.afterPost = nil
	if res := a.sync(t); res.Uploaded != 4 {
		t.Errorf("expected remaining creates and edits on the next pass, got %+v", res)
	}
	if _, tasks := remoteState(t, engine); findByName(tasks, "buy oat milk") == nil || findByName(tasks, "four") == nil {
		t.Errorf("expected resumed work on the server, got %+v", tasks)
	}
	if res := a.sync(t); res.Actions != 0 {
		t.Errorf("expected an idle pass after resuming, got %d actions", res.Actions)
	}
}

func TestSingleSessionAtATime(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	a.transport.entered = make(chan struct{}, 1)
	a.transport.block = make(chan struct{})

	first := NewRunner(a.manager).Start(context.Background())
	select {
	case <-a.transport.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first session never logged in")
	}
	if _, err := a.manager.Sync(context.Background(), nil, nil); !errors.Is(err, syncerr.ErrInProgress) {
		t.Errorf("expected ErrInProgress while a session runs, got %v", err)
	}
	if Classify(syncerr.ErrInProgress) != StateInternalError {
		t.Error("expected busy to be an internal error")
	}

	close(a.transport.block)
	if out := <-first; out.State != StateSuccess {
		t.Errorf("expected first session to succeed, got %v (%v)", out.State, out.Err)
	}
}

func TestRunnerCompletionFiresOnce(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)

	done := make(chan Outcome, 2)
	var progress []string
	r := NewRunner(a.manager,
		WithProgress(func(s string) { progress = append(progress, s) }),
		WithCompletion(func(o Outcome) { done <- o }))

	out := <-r.Start(context.Background())
	if out.State != StateSuccess || out.Message() != "Synchronized with alice" {
		t.Fatalf("unexpected outcome %v %q", out.State, out.Message())
	}
	if again := r.Run(context.Background()); again.State != StateInternalError {
		t.Errorf("expected reuse to fail, got %v", again.State)
	}

	select {
	case got := <-done:
		if got.State != StateSuccess {
			t.Errorf("unexpected completion state %v", got.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("completion callback never ran")
	}
	select {
	case <-done:
		t.Error("completion callback ran twice")
	case <-time.After(50 * time.Millisecond):
	}

	if len(progress) == 0 || progress[0] != "Logging in to test" {
		t.Errorf("unexpected progress %v", progress)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want State
	}{
		{nil, StateSuccess},
		{syncerr.ErrCancelled, StateCancelled},
		{context.Canceled, StateCancelled},
		{syncerr.Network("login", errors.New("refused")), StateNetworkError},
		{syncerr.Action("get_all", "bad"), StateInternalError},
		{errors.New("boom"), StateInternalError},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestAutoSyncRunsAfterChange(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	ctx := context.Background()

	auto := NewAutoSync(a.manager, AutoOptions{Debounce: 20 * time.Millisecond})
	outcomes := make(chan Outcome, 4)
	auto.SetOnSync(func(o Outcome) {
		select {
		case outcomes <- o:
		default:
		}
	})
	if err := auto.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer auto.Stop()

	a.db.CreateNote(ctx, model.RootFolderID, "typed")
	a.db.NotifyChange()

	select {
	case out := <-outcomes:
		if out.State != StateSuccess {
			t.Fatalf("unexpected state %v (%v)", out.State, out.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("auto sync never ran")
	}

	_, tasks := remoteState(t, engine)
	if findByName(tasks, "typed") == nil {
		t.Error("expected note uploaded by auto sync")
	}
}

func TestSyncNowSuppressesFollowUpSession(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	ctx := context.Background()

	auto := NewAutoSync(a.manager, AutoOptions{Debounce: 250 * time.Millisecond})
	outcomes := make(chan Outcome, 4)
	auto.SetOnSync(func(o Outcome) { outcomes <- o })
	if err := auto.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer auto.Stop()

	a.db.CreateNote(ctx, model.RootFolderID, "typed")
	if out := auto.SyncNow(ctx); out.State != StateSuccess {
		t.Fatalf("unexpected state %v (%v)", out.State, out.Err)
	}
	if auto.IsPending() {
		t.Error("expected nothing scheduled after SyncNow")
	}

	// The session's own change notification must not schedule another one.
	select {
	case out := <-outcomes:
		t.Errorf("unexpected automatic session after SyncNow: %v", out.State)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestStopWaitsForDebouncedSession(t *testing.T) {
	engine := server.NewEngine(server.NewMemoryStore())
	a := newDevice(t, engine)
	a.transport.entered = make(chan struct{}, 1)
	a.transport.block = make(chan struct{})

	auto := NewAutoSync(a.manager, AutoOptions{Debounce: 10 * time.Millisecond})
	finished := make(chan Outcome, 1)
	auto.SetOnSync(func(o Outcome) {
		time.Sleep(20 * time.Millisecond)
		finished <- o
	})
	if err := auto.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	auto.Trigger()
	select {
	case <-a.transport.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("debounced session never started")
	}

	auto.Stop()
	select {
	case out := <-finished:
		if out.State == StateSuccess {
			t.Errorf("expected the stopped session to end early, got %v", out.State)
		}
	default:
		t.Fatal("Stop returned before the debounced session finished")
	}
	if auto.IsPending() {
		t.Error("expected nothing pending after Stop")
	}
}
