// Package sync reconciles the local note store with the remote task service.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/existflow/ironnotes/internal/db"
	"github.com/existflow/ironnotes/internal/local"
	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/model"
	"github.com/existflow/ironnotes/internal/node"
	"github.com/existflow/ironnotes/internal/protocol"
	"github.com/existflow/ironnotes/internal/remote"
	"github.com/existflow/ironnotes/internal/syncerr"
)

// Keys of the sync_state table
const (
	StateSyncPoint = "latest_sync_point"
	StateMetaList  = "meta_list_gid"
	StateAccount   = "account_id"
)

// Options tune a Manager
type Options struct {
	BatchSize int
	Server    string // shown in progress messages
}

// Manager runs sync sessions against one local store. At most one session
// runs at a time.
type Manager struct {
	db        *db.DB
	transport remote.Transport
	opts      Options
	sem       *semaphore.Weighted
}

// NewManager creates a manager syncing database through t
func NewManager(database *db.DB, t remote.Transport, opts Options) *Manager {
	if opts.BatchSize <= 0 {
		opts.BatchSize = remote.DefaultBatchSize
	}
	return &Manager{
		db:        database,
		transport: t,
		opts:      opts,
		sem:       semaphore.NewWeighted(1),
	}
}

// DB returns the local store
func (m *Manager) DB() *db.DB {
	return m.db
}

// Result holds the statistics of one session
type Result struct {
	Account    string
	Uploaded   int // remote creates, updates and deletions applied
	Downloaded int // local creates and updates applied
	Deleted    int // local rows removed because the remote side deleted them
	Conflicts  int
	Skipped    int // local writes dropped because the row changed during the session
	Errors     int // nodes skipped as ERROR
	Actions    int // mutating actions sent
	Decisions  map[node.SyncAction]int
}

// Sync runs one session. cancelled is polled before every node action and
// every batch; progress receives coarse status lines. Both may be nil.
func (m *Manager) Sync(ctx context.Context, cancelled func() bool, progress func(string)) (*Result, error) {
	if !m.sem.TryAcquire(1) {
		return nil, syncerr.ErrInProgress
	}
	defer m.sem.Release(1)
	defer m.db.NotifyChange()

	client := remote.NewClient(m.transport, m.opts.BatchSize)
	client.SetCancelled(cancelled)
	s := &session{
		db:        m.db,
		client:    client,
		server:    m.opts.Server,
		cancelled: cancelled,
		progress:  progress,
		result:    &Result{Decisions: make(map[node.SyncAction]int)},
		lists:     make(map[string]protocol.Entity),
		tasks:     make(map[string]protocol.Entity),
		invalid:   make(map[string]error),
		claimed:   make(map[string]bool),
	}

	logger.Info("Sync started", logger.F("server", m.opts.Server))
	err := s.run(ctx)
	s.result.Actions = s.client.MutatingActions()
	if err != nil {
		logger.Warn("Sync ended early",
			logger.F("error", err),
			logger.F("actions", s.result.Actions))
		return s.result, err
	}

	logger.Info("Sync completed",
		logger.F("uploaded", s.result.Uploaded),
		logger.F("downloaded", s.result.Downloaded),
		logger.F("deleted", s.result.Deleted),
		logger.F("conflicts", s.result.Conflicts),
		logger.F("errors", s.result.Errors),
		logger.F("actions", s.result.Actions))
	return s.result, nil
}

// session is the state of one pass
type session struct {
	db        *db.DB
	client    *remote.Client
	server    string
	cancelled func() bool
	progress  func(string)
	result    *Result

	since       int64
	point       int64
	metaListGID string

	lists   map[string]protocol.Entity // owned lists fetched this pass
	tasks   map[string]protocol.Entity // tasks fetched this pass, metadata excluded
	invalid map[string]error
	metas   []*node.MetaData
	claimed map[string]bool // remote ids bound to a local row

	folderGIDs map[int64]string
	folderIDs  map[string]int64
}

// plan is the decision for one local row, one remote node, or a bound pair
type plan struct {
	note   model.Note // zero when only the remote side exists
	row    *node.LocalRow
	remote node.Node
	action node.SyncAction
}

func (s *session) run(ctx context.Context) error {
	s.report("Logging in to " + s.server)
	user, err := s.client.Login(ctx)
	if err != nil {
		return err
	}
	s.result.Account = user.Name
	if err := s.loadState(ctx, user); err != nil {
		return err
	}

	if err := s.checkCancelled(ctx); err != nil {
		return err
	}
	snap, err := s.client.GetAll(ctx, s.since)
	if err != nil {
		return err
	}
	s.index(snap)

	if err := s.syncFolders(ctx); err != nil {
		return err
	}
	if err := s.syncNotes(ctx); err != nil {
		return err
	}
	if err := s.flush(ctx); err != nil {
		return err
	}

	if err := s.db.SetState(ctx, StateSyncPoint, strconv.FormatInt(s.point, 10)); err != nil {
		return syncerr.WrapAction("save sync point", err)
	}
	if err := s.db.SetState(ctx, StateAccount, user.ID); err != nil {
		return syncerr.WrapAction("save account", err)
	}
	return nil
}

func (s *session) report(status string) {
	if s.progress != nil {
		s.progress(status)
	}
}

func (s *session) checkCancelled(ctx context.Context) error {
	if s.cancelled != nil && s.cancelled() {
		return syncerr.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrCancelled, err)
	}
	return nil
}

func (s *session) loadState(ctx context.Context, user protocol.User) error {
	account, err := s.db.GetState(ctx, StateAccount)
	if err != nil {
		return syncerr.WrapAction("load state", err)
	}
	if account != "" && account != user.ID {
		return syncerr.Action("login", "local notes are bound to account %s, not %s", account, user.ID)
	}

	point, err := s.db.GetState(ctx, StateSyncPoint)
	if err != nil {
		return syncerr.WrapAction("load state", err)
	}
	if point != "" {
		if s.since, err = strconv.ParseInt(point, 10, 64); err != nil {
			logger.Warn("Ignoring unreadable sync point", logger.F("value", point))
			s.since = 0
		}
	}

	s.metaListGID, err = s.db.GetState(ctx, StateMetaList)
	if err != nil {
		return syncerr.WrapAction("load state", err)
	}
	return nil
}

// index sorts the fetched entities into owned lists, tasks and metadata.
// Lists without the folder prefix belong to other applications.
func (s *session) index(snap *remote.Snapshot) {
	s.point = snap.LatestSyncPoint

	for _, e := range snap.Lists {
		switch {
		case node.IsMetaList(e.Name):
			if e.Deleted {
				if e.ID == s.metaListGID {
					s.metaListGID = ""
				}
				continue
			}
			s.metaListGID = e.ID
		case node.IsOwnedList(e.Name):
			s.lists[e.ID] = e
		}
	}

	for _, e := range snap.Tasks {
		if s.metaListGID == "" || e.ListID != s.metaListGID {
			s.tasks[e.ID] = e
			continue
		}
		n, err := node.FromEntity(e, s.metaListGID)
		if err != nil {
			s.result.Errors++
			logger.Warn("Ignoring metadata record", logger.F("gid", e.ID), logger.F("error", err))
			continue
		}
		meta := n.(*node.MetaData)
		if !meta.Valid() {
			logger.Warn("Ignoring unreadable metadata record", logger.F("gid", e.ID), logger.F("error", meta.ParseErr()))
			continue
		}
		if !meta.Deleted {
			s.metas = append(s.metas, meta)
		}
	}

	for _, inv := range snap.Invalid {
		s.result.Errors++
		logger.Warn("Remote entity rejected", logger.F("gid", inv.ID), logger.F("error", inv.Err))
		if inv.ID != "" {
			s.invalid[inv.ID] = inv.Err
		}
	}
}

// remoteNode returns the fetched node with gid, nil when the fetch did not report it
func (s *session) remoteNode(gid string) node.Node {
	if e, ok := s.lists[gid]; ok {
		l := &node.TaskList{}
		_ = l.SetContentByRemote(e)
		return l
	}
	if e, ok := s.tasks[gid]; ok {
		t := &node.Task{}
		_ = t.SetContentByRemote(e)
		return t
	}
	return nil
}

func (s *session) decide(row *node.LocalRow, remote node.Node) node.SyncAction {
	if row != nil && row.GID != "" {
		if _, bad := s.invalid[row.GID]; bad {
			return node.ActionError
		}
	}
	return node.Decide(row, remote)
}

// phase orders plans: creates, then updates, then deletions
func phase(a node.SyncAction) int {
	switch a {
	case node.ActionAddRemote, node.ActionAddLocal:
		return 0
	case node.ActionUpdateRemote, node.ActionUpdateLocal, node.ActionUpdateConflict:
		return 1
	case node.ActionDelRemote, node.ActionDelLocal:
		return 2
	default:
		return 3
	}
}

func (s *session) order(plans []plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		return phase(plans[i].action) < phase(plans[j].action)
	})
	for _, p := range plans {
		s.result.Decisions[p.action]++
	}
}

func sortedKeys(m map[string]protocol.Entity) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *session) flush(ctx context.Context) error {
	if s.client.Pending() == 0 {
		return nil
	}
	if err := s.checkCancelled(ctx); err != nil {
		return err
	}
	return s.client.Flush(ctx)
}

func (s *session) flushIfFull(ctx context.Context) error {
	if !s.client.Full() {
		return nil
	}
	return s.flush(ctx)
}

// markSynced writes v guarded by the version the row had when the pass read
// it. When the row changed in between, only fallback is written so the next
// pass sees the remote binding but still pushes the newer local edit.
func (s *session) markSynced(ctx context.Context, row *node.LocalRow, v, fallback db.Values) error {
	n, err := s.db.UpdateNote(ctx, row.ID, v, row.Version)
	if err != nil {
		return syncerr.WrapAction("mark synced", err)
	}
	if n == 1 {
		return nil
	}

	s.result.Skipped++
	logger.Warn("Row changed during sync, keeping local edit",
		logger.F("note_id", row.ID), logger.F("version", row.Version))
	if len(fallback) == 0 {
		return nil
	}
	if _, err := s.db.UpdateNote(ctx, row.ID, fallback, db.NoGuard); err != nil {
		return syncerr.WrapAction("mark synced", err)
	}
	return nil
}

// deleteRow removes a local row unless it changed during the pass
func (s *session) deleteRow(ctx context.Context, row *node.LocalRow) error {
	affected, err := s.db.Apply(ctx, []db.Op{db.GuardedDeleteNoteOp(row.ID, row.Version)})
	if err != nil {
		return syncerr.WrapAction("delete note", err)
	}
	if affected[0] == 0 {
		s.result.Skipped++
		logger.Warn("Row changed during sync, not deleting",
			logger.F("note_id", row.ID), logger.F("version", row.Version))
	}
	return nil
}

func deleteAction(actionID int, gid string) protocol.Action {
	deleted := true
	return protocol.Action{
		ActionID:    actionID,
		ActionType:  protocol.ActionUpdate,
		ID:          gid,
		EntityDelta: &protocol.EntityDelta{Deleted: &deleted},
	}
}

// lastModified returns the newest last_modified reported in rs
func lastModified(rs []protocol.Result) int64 {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].ChildEntity != nil {
			return rs[i].ChildEntity.LastModified
		}
	}
	return 0
}

func (s *session) skip(kind string, p plan, reason string, err error) {
	s.result.Errors++
	fields := []logger.Field{logger.F("kind", kind), logger.F("reason", reason)}
	if p.row != nil {
		fields = append(fields, logger.F("note_id", p.row.ID), logger.F("gid", p.row.GID))
	} else if p.remote != nil {
		fields = append(fields, logger.F("gid", node.HeaderOf(p.remote).GID))
	}
	if err != nil {
		fields = append(fields, logger.F("error", err))
	}
	logger.Warn("Skipping node", fields...)
}

func (s *session) resolve(kind string, p *plan) {
	s.result.Conflicts++
	resolved := node.ResolveConflict(p.row, p.remote)
	logger.Info("Resolved conflict",
		logger.F("kind", kind),
		logger.F("note_id", p.row.ID),
		logger.F("gid", p.row.GID),
		logger.F("local_modified", p.row.ModifiedDate),
		logger.F("remote_modified", node.HeaderOf(p.remote).LastModified),
		logger.F("winner", resolved.String()))
	p.action = resolved
}

// folder phase

func folderContent(f *model.Note) model.LocalContent {
	return model.LocalContent{Note: model.NoteJSON{
		ID:      model.Ptr(f.ID),
		Type:    model.Ptr(f.Type),
		Snippet: model.Ptr(f.Snippet),
	}}
}

func folderName(f *model.Note) string {
	return strings.TrimPrefix(node.ListName(f), protocol.FolderPrefix)
}

func isSystemFolder(id int64) bool {
	return id <= model.RootFolderID
}

func (s *session) syncFolders(ctx context.Context) error {
	folders, err := s.db.ListSyncFolders(ctx)
	if err != nil {
		return syncerr.WrapAction("list folders", err)
	}

	// Bound folders claim their lists before any unbound folder is matched by name.
	for _, f := range folders {
		if f.GTaskID != "" {
			s.claimed[f.GTaskID] = true
		}
	}

	var plans []plan
	for i := range folders {
		f := folders[i]
		row := node.RowFromNote(&f)
		if row.GID == "" && !row.Deleted {
			if err := s.bindFolder(ctx, &f, row); err != nil {
				return err
			}
		}
		p := plan{note: f, row: row}
		if row.GID != "" {
			p.remote = s.remoteNode(row.GID)
		}
		p.action = s.decide(row, p.remote)
		plans = append(plans, p)
	}

	for _, gid := range sortedKeys(s.lists) {
		if s.claimed[gid] {
			continue
		}
		l := &node.TaskList{}
		_ = l.SetContentByRemote(s.lists[gid])
		plans = append(plans, plan{remote: l, action: s.decide(nil, l)})
	}

	s.order(plans)
	for i := range plans {
		p := plans[i]
		if err := s.checkCancelled(ctx); err != nil {
			return err
		}
		if p.row != nil {
			s.report("Synchronizing folder " + folderName(&p.note))
		} else {
			s.report("Synchronizing folder " + strings.TrimPrefix(node.HeaderOf(p.remote).Name, protocol.FolderPrefix))
		}
		if err := s.applyFolder(ctx, p); err != nil {
			return err
		}
	}
	return s.flush(ctx)
}

// bindFolder attaches an unbound folder to an existing remote list: first one
// named by a metadata record for this folder, then one with the same name.
func (s *session) bindFolder(ctx context.Context, f *model.Note, row *node.LocalRow) error {
	live := func(gid string) bool {
		e, ok := s.lists[gid]
		return ok && !e.Deleted && !s.claimed[gid]
	}

	gid := ""
	for _, meta := range s.metas {
		if meta.FolderID == f.ID && meta.FolderName == f.Snippet && live(meta.RelatedGID) {
			gid = meta.RelatedGID
			break
		}
	}
	if gid == "" {
		name := node.ListName(f)
		for _, id := range sortedKeys(s.lists) {
			if live(id) && s.lists[id].Name == name {
				gid = id
				break
			}
		}
	}
	if gid == "" {
		return nil
	}

	e := s.lists[gid]
	n, err := s.db.UpdateNote(ctx, f.ID, db.Values{
		"gtask_id":       gid,
		"sync_id":        e.LastModified,
		"local_modified": false,
	}, f.Version)
	if err != nil {
		return syncerr.WrapAction("bind folder", err)
	}
	if n == 0 {
		logger.Warn("Folder changed during sync, binding deferred", logger.F("folder_id", f.ID))
		return nil
	}

	logger.Info("Bound folder to existing list", logger.F("folder_id", f.ID), logger.F("gid", gid))
	s.claimed[gid] = true
	f.GTaskID, f.SyncID, f.LocalModified = gid, e.LastModified, false
	f.Version++
	*row = *node.RowFromNote(f)
	return nil
}

func (s *session) applyFolder(ctx context.Context, p plan) error {
	switch p.action {
	case node.ActionNone:
		return nil
	case node.ActionError:
		s.skip("folder", p, "undecidable", nil)
		return nil
	case node.ActionUpdateConflict:
		s.resolve("folder", &p)
		return s.applyFolder(ctx, p)
	case node.ActionAddRemote:
		return s.createList(ctx, p)
	case node.ActionAddLocal:
		return s.addLocalFolder(ctx, p)
	case node.ActionUpdateRemote:
		return s.updateRemoteFolder(ctx, p)
	case node.ActionUpdateLocal:
		return s.updateLocalFolder(ctx, p)
	case node.ActionDelRemote:
		return s.deleteRemoteFolder(ctx, p)
	case node.ActionDelLocal:
		return s.deleteLocalFolder(ctx, p)
	}
	return syncerr.Action("sync folder", "unknown action %s", p.action)
}

func (s *session) createList(ctx context.Context, p plan) error {
	l := &node.TaskList{}
	if err := l.SetContentByLocal(folderContent(&p.note)); err != nil {
		s.skip("folder", p, "cannot build list", err)
		return nil
	}

	r, err := s.client.Create(ctx, l.CreateAction(s.client.NextActionID()))
	if err != nil {
		return err
	}
	s.result.Uploaded++
	s.claimed[r.NewID] = true

	lm := lastModified([]protocol.Result{r})
	err = s.markSynced(ctx, p.row,
		db.Values{"gtask_id": r.NewID, "sync_id": lm, "local_modified": false},
		db.Values{"gtask_id": r.NewID, "sync_id": lm})
	if err != nil {
		return err
	}
	return s.createMeta(ctx, r.NewID, &p.note)
}

// ensureMetaList returns the metadata list, creating it on first use
func (s *session) ensureMetaList(ctx context.Context) (string, error) {
	if s.metaListGID != "" {
		return s.metaListGID, nil
	}

	l := &node.TaskList{}
	l.Name = protocol.FolderPrefix + protocol.FolderMeta
	r, err := s.client.Create(ctx, l.CreateAction(s.client.NextActionID()))
	if err != nil {
		return "", err
	}
	s.metaListGID = r.NewID
	// Saved at once: the list exists remotely whether or not the session completes.
	if err := s.db.SetState(ctx, StateMetaList, r.NewID); err != nil {
		return "", syncerr.WrapAction("save metadata list", err)
	}
	return r.NewID, nil
}

func (s *session) createMeta(ctx context.Context, listGID string, folder *model.Note) error {
	metaList, err := s.ensureMetaList(ctx)
	if err != nil {
		return err
	}
	meta := node.NewMetaData(listGID, folder, metaList)
	r, err := s.client.Create(ctx, meta.CreateAction(s.client.NextActionID()))
	if err != nil {
		return err
	}
	meta.GID = r.NewID
	s.metas = append(s.metas, meta)
	return nil
}

func (s *session) metaFor(listGID string) *node.MetaData {
	for _, meta := range s.metas {
		if meta.RelatedGID == listGID && meta.GID != "" {
			return meta
		}
	}
	return nil
}

func (s *session) addLocalFolder(ctx context.Context, p plan) error {
	l := p.remote.(*node.TaskList)
	c, err := l.LocalContent()
	if err != nil {
		s.skip("folder", p, "cannot map list", err)
		return nil
	}

	if c.Note.ID != nil {
		// Default and Call_Note bind to the matching system folder.
		f, err := s.db.GetNote(ctx, *c.Note.ID)
		if err != nil {
			return syncerr.WrapAction("bind system folder", err)
		}
		if f.GTaskID != "" {
			s.skip("folder", p, "system folder already bound to "+f.GTaskID, nil)
			return nil
		}
		row := node.RowFromNote(f)
		if err := s.markSynced(ctx, row, db.Values{
			"gtask_id": l.GID, "sync_id": l.LastModified, "local_modified": false,
		}, nil); err != nil {
			return err
		}
		s.claimed[l.GID] = true
		s.result.Downloaded++
		return nil
	}

	if _, err := s.db.NoteByGID(ctx, l.GID); err == nil {
		s.skip("folder", p, "gid bound to a row outside sync", nil)
		return nil
	} else if !db.IsNotFound(err) {
		return syncerr.WrapAction("add folder", err)
	}

	n := local.NewSqlNote(model.TypeFolder, model.RootFolderID)
	if err := n.SetContent(c); err != nil {
		s.skip("folder", p, "cannot map list", err)
		return nil
	}
	n.SetGTaskID(l.GID)
	n.SetSyncID(l.LastModified)
	n.SetOriginParentID(model.RootFolderID)
	n.SetLocalModified(false)

	if err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		return n.Commit(ctx, tx, false, 0)
	}); err != nil {
		return err
	}
	s.claimed[l.GID] = true
	s.result.Downloaded++
	return nil
}

func (s *session) updateRemoteFolder(ctx context.Context, p plan) error {
	l := &node.TaskList{}
	if err := l.SetContentByLocal(folderContent(&p.note)); err != nil {
		s.skip("folder", p, "cannot build list", err)
		return nil
	}
	l.GID = p.row.GID

	row := p.row
	s.client.Queue(func(rs []protocol.Result) error {
		s.result.Uploaded++
		lm := lastModified(rs)
		return s.markSynced(ctx, row,
			db.Values{"sync_id": lm, "local_modified": false},
			db.Values{"sync_id": lm})
	}, l.UpdateAction(s.client.NextActionID(), p.remote))
	return s.flushIfFull(ctx)
}

func (s *session) updateLocalFolder(ctx context.Context, p plan) error {
	l := p.remote.(*node.TaskList)
	v := db.Values{"sync_id": l.LastModified, "local_modified": false}
	if !isSystemFolder(p.row.ID) {
		c, err := l.LocalContent()
		if err != nil {
			s.skip("folder", p, "cannot map list", err)
			return nil
		}
		if c.Note.Snippet != nil {
			v["snippet"] = *c.Note.Snippet
		}
	}
	if err := s.markSynced(ctx, p.row, v, nil); err != nil {
		return err
	}
	s.result.Downloaded++
	return nil
}

func (s *session) deleteRemoteFolder(ctx context.Context, p plan) error {
	actions := []protocol.Action{deleteAction(s.client.NextActionID(), p.row.GID)}
	if meta := s.metaFor(p.row.GID); meta != nil {
		actions = append(actions, deleteAction(s.client.NextActionID(), meta.GID))
	}

	row := p.row
	s.client.Queue(func([]protocol.Result) error {
		s.result.Uploaded++
		return s.deleteRow(ctx, row)
	}, actions...)
	return s.flushIfFull(ctx)
}

func (s *session) deleteLocalFolder(ctx context.Context, p plan) error {
	if meta := s.metaFor(p.row.GID); meta != nil {
		s.client.Queue(nil, deleteAction(s.client.NextActionID(), meta.GID))
	}

	if isSystemFolder(p.row.ID) {
		// System folders stay; dropping the binding lets the next pass recreate the list.
		if err := s.markSynced(ctx, p.row, db.Values{"gtask_id": "", "sync_id": int64(0)}, nil); err != nil {
			return err
		}
	} else if err := s.deleteRow(ctx, p.row); err != nil {
		return err
	}
	s.result.Deleted++
	return s.flushIfFull(ctx)
}

// note phase

func (s *session) loadFolderIndex(ctx context.Context) error {
	folders, err := s.db.ListSyncFolders(ctx)
	if err != nil {
		return syncerr.WrapAction("list folders", err)
	}
	s.folderGIDs = make(map[int64]string, len(folders))
	s.folderIDs = make(map[string]int64, len(folders))
	for _, f := range folders {
		if f.GTaskID == "" || f.InTrash() {
			continue
		}
		s.folderGIDs[f.ID] = f.GTaskID
		s.folderIDs[f.GTaskID] = f.ID
	}
	return nil
}

func (s *session) syncNotes(ctx context.Context) error {
	s.report("Synchronizing notes")
	if err := s.loadFolderIndex(ctx); err != nil {
		return err
	}

	// Re-read: the folder phase may have removed rows.
	notes, err := s.db.ListSyncNotes(ctx)
	if err != nil {
		return syncerr.WrapAction("list notes", err)
	}

	var plans []plan
	for i := range notes {
		n := notes[i]
		row := node.RowFromNote(&n)
		p := plan{note: n, row: row}
		if row.GID != "" {
			s.claimed[row.GID] = true
			p.remote = s.remoteNode(row.GID)
		}
		p.action = s.decide(row, p.remote)
		plans = append(plans, p)
	}

	for _, gid := range sortedKeys(s.tasks) {
		if s.claimed[gid] {
			continue
		}
		e := s.tasks[gid]
		if _, ok := s.folderIDs[e.ListID]; !ok {
			// Not in a list this device mirrors.
			continue
		}
		t := &node.Task{}
		_ = t.SetContentByRemote(e)
		plans = append(plans, plan{remote: t, action: s.decide(nil, t)})
	}

	s.order(plans)
	for i := range plans {
		if err := s.checkCancelled(ctx); err != nil {
			return err
		}
		if err := s.applyNote(ctx, plans[i]); err != nil {
			return err
		}
	}
	return s.flush(ctx)
}

func (s *session) applyNote(ctx context.Context, p plan) error {
	switch p.action {
	case node.ActionNone:
		return nil
	case node.ActionError:
		s.skip("note", p, "undecidable", nil)
		return nil
	case node.ActionUpdateConflict:
		s.resolve("note", &p)
		return s.applyNote(ctx, p)
	case node.ActionAddRemote:
		return s.createTask(ctx, p)
	case node.ActionAddLocal:
		return s.addLocalNote(ctx, p)
	case node.ActionUpdateRemote:
		return s.updateRemoteNote(ctx, p)
	case node.ActionUpdateLocal:
		return s.updateLocalNote(ctx, p)
	case node.ActionDelRemote:
		row := p.row
		s.client.Queue(func([]protocol.Result) error {
			s.result.Uploaded++
			return s.deleteRow(ctx, row)
		}, deleteAction(s.client.NextActionID(), p.row.GID))
		return s.flushIfFull(ctx)
	case node.ActionDelLocal:
		if err := s.deleteRow(ctx, p.row); err != nil {
			return err
		}
		s.result.Deleted++
		return nil
	}
	return syncerr.Action("sync note", "unknown action %s", p.action)
}

// localTask renders a local note as a task
func (s *session) localTask(ctx context.Context, id int64) (*node.Task, error) {
	sn, err := local.LoadSqlNote(ctx, s.db, id)
	if err != nil {
		return nil, syncerr.WrapAction("load note", err)
	}
	c, err := sn.Content()
	if err != nil {
		return nil, syncerr.WrapAction("load note", err)
	}
	t := &node.Task{}
	if err := t.SetContentByLocal(c); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *session) createTask(ctx context.Context, p plan) error {
	parentGID := s.folderGIDs[p.note.ParentID]
	if parentGID == "" {
		s.skip("note", p, "folder is not synchronized", nil)
		return nil
	}
	t, err := s.localTask(ctx, p.note.ID)
	if err != nil {
		if syncerr.IsAction(err) {
			return err
		}
		s.skip("note", p, "cannot build task", err)
		return nil
	}
	t.ListGID = parentGID

	r, err := s.client.Create(ctx, t.CreateAction(s.client.NextActionID()))
	if err != nil {
		return err
	}
	s.result.Uploaded++

	lm := lastModified([]protocol.Result{r})
	return s.markSynced(ctx, p.row,
		db.Values{"gtask_id": r.NewID, "sync_id": lm, "origin_parent_id": p.note.ParentID, "local_modified": false},
		db.Values{"gtask_id": r.NewID, "sync_id": lm, "origin_parent_id": p.note.ParentID})
}

func (s *session) addLocalNote(ctx context.Context, p plan) error {
	t := p.remote.(*node.Task)
	parentID := s.folderIDs[t.ListGID]

	if _, err := s.db.NoteByGID(ctx, t.GID); err == nil {
		s.skip("note", p, "gid bound to a row outside sync", nil)
		return nil
	} else if !db.IsNotFound(err) {
		return syncerr.WrapAction("add note", err)
	}

	c, err := t.LocalContent()
	if err != nil {
		s.skip("note", p, "cannot map task", err)
		return nil
	}
	n := local.NewSqlNote(model.TypeNote, parentID)
	if err := n.SetContent(c); err != nil {
		s.skip("note", p, "cannot map task", err)
		return nil
	}
	n.SetGTaskID(t.GID)
	n.SetSyncID(t.LastModified)
	n.SetOriginParentID(parentID)
	n.SetModifiedDate(t.LastModified)
	n.SetLocalModified(false)

	if err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		return n.Commit(ctx, tx, false, 0)
	}); err != nil {
		return err
	}
	s.result.Downloaded++
	return nil
}

func (s *session) updateRemoteNote(ctx context.Context, p plan) error {
	parentGID := s.folderGIDs[p.note.ParentID]
	if parentGID == "" {
		s.skip("note", p, "folder is not synchronized", nil)
		return nil
	}
	t, err := s.localTask(ctx, p.note.ID)
	if err != nil {
		if syncerr.IsAction(err) {
			return err
		}
		s.skip("note", p, "cannot build task", err)
		return nil
	}
	t.GID = p.row.GID
	t.ListGID = parentGID

	actions := []protocol.Action{t.UpdateAction(s.client.NextActionID(), p.remote)}
	if p.note.ParentID != p.note.OriginParentID {
		src := s.folderGIDs[p.note.OriginParentID]
		if rt, ok := p.remote.(*node.Task); ok {
			src = rt.ListGID
		}
		if src != "" && src != parentGID {
			actions = append(actions, protocol.MoveAction(s.client.NextActionID(), t.GID, src, parentGID, ""))
		}
	}

	row, parent := p.row, p.note.ParentID
	s.client.Queue(func(rs []protocol.Result) error {
		s.result.Uploaded++
		lm := lastModified(rs)
		return s.markSynced(ctx, row,
			db.Values{"sync_id": lm, "origin_parent_id": parent, "local_modified": false},
			db.Values{"sync_id": lm, "origin_parent_id": parent})
	}, actions...)
	return s.flushIfFull(ctx)
}

func (s *session) updateLocalNote(ctx context.Context, p plan) error {
	t := p.remote.(*node.Task)
	c, err := t.LocalContent()
	if err != nil {
		s.skip("note", p, "cannot map task", err)
		return nil
	}

	parentID := p.note.ParentID
	if id, ok := s.folderIDs[t.ListGID]; ok {
		parentID = id
	}

	err = s.db.WithTx(ctx, func(tx *db.Tx) error {
		sn, err := local.LoadSqlNote(ctx, tx, p.row.ID)
		if err != nil {
			return syncerr.WrapAction("load note", err)
		}
		if err := sn.SetContent(c); err != nil {
			return syncerr.WrapAction("update note", err)
		}
		sn.SetParentID(parentID)
		sn.SetModifiedDate(t.LastModified)
		sn.SetSyncID(t.LastModified)
		sn.SetOriginParentID(parentID)
		sn.SetLocalModified(false)
		return sn.Commit(ctx, tx, true, p.row.Version)
	})
	if errors.Is(err, syncerr.ErrVersionConflict) {
		s.result.Skipped++
		logger.Warn("Note changed during sync, remote update deferred",
			logger.F("note_id", p.row.ID), logger.F("gid", p.row.GID))
		return nil
	}
	if err != nil {
		return err
	}
	s.result.Downloaded++
	return nil
}
