package app

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"canopy/internal/config"
	"canopy/internal/domain"
	"canopy/internal/filter"
	"canopy/internal/lifecycle"
	"canopy/internal/search"
	"canopy/internal/store"
)

type fakeStore struct {
	roles  map[string]string
	pingFn func(context.Context) error
}

func (f *fakeStore) WorkspaceRole(_ context.Context, workspaceID, userID string) (string, error) {
	return f.roles[workspaceID+"/"+userID], nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

// memTree is an in-memory item table shared by the task and note fakes.
type memTree[T domain.Node] struct {
	kind        domain.Kind
	items       map[string]T
	withParent  func(item T, parentID *string, position float64) T
	withDeleted func(item T, at *time.Time) T
	position    func(item T) float64
}

func (m *memTree[T]) FindByID(_ context.Context, id string) (T, error) {
	item, ok := m.items[id]
	if !ok {
		var zero T
		return zero, &domain.NotFoundError{Kind: m.kind, ID: id}
	}
	return item, nil
}

func (m *memTree[T]) MaxSiblingPosition(_ context.Context, workspaceID string, parentID *string) (float64, bool, error) {
	max, found := 0.0, false
	for _, item := range m.items {
		if item.NodeWorkspaceID() != workspaceID || item.NodeDeletedAt() != nil || !domain.SameParent(item.NodeParentID(), parentID) {
			continue
		}
		if !found || m.position(item) > max {
			max, found = m.position(item), true
		}
	}
	return max, found, nil
}

func (m *memTree[T]) SetParent(_ context.Context, id string, parentID *string, position float64) error {
	item, ok := m.items[id]
	if !ok {
		return &domain.NotFoundError{Kind: m.kind, ID: id}
	}
	if parentID != nil {
		if _, ok := m.items[*parentID]; !ok {
			return &domain.NotFoundError{Kind: m.kind, ID: *parentID}
		}
	}
	m.items[id] = m.withParent(item, parentID, position)
	return nil
}

func (m *memTree[T]) ListChildren(_ context.Context, parentID string) ([]T, error) {
	return m.sorted(func(item T) bool {
		return item.NodeParentID() != nil && *item.NodeParentID() == parentID
	}), nil
}

func (m *memTree[T]) ListActiveChildren(_ context.Context, workspaceID string, parentID *string) ([]T, error) {
	return m.sorted(func(item T) bool {
		return item.NodeWorkspaceID() == workspaceID && item.NodeDeletedAt() == nil && domain.SameParent(item.NodeParentID(), parentID)
	}), nil
}

func (m *memTree[T]) ListTrashed(_ context.Context, workspaceID string) ([]T, error) {
	return m.sorted(func(item T) bool {
		return item.NodeWorkspaceID() == workspaceID && item.NodeDeletedAt() != nil
	}), nil
}

func (m *memTree[T]) MarkTrashed(_ context.Context, id string, at time.Time) error {
	item, ok := m.items[id]
	if !ok {
		return &domain.NotFoundError{Kind: m.kind, ID: id}
	}
	m.items[id] = m.withDeleted(item, &at)
	return nil
}

func (m *memTree[T]) MarkChildrenTrashed(ctx context.Context, parentID string, at time.Time) (int64, error) {
	children, _ := m.ListChildren(ctx, parentID)
	var count int64
	for _, child := range children {
		m.items[child.NodeID()] = m.withDeleted(child, &at)
		count++
	}
	return count, nil
}

func (m *memTree[T]) ClearTrashed(_ context.Context, id string) error {
	item, ok := m.items[id]
	if !ok {
		return &domain.NotFoundError{Kind: m.kind, ID: id}
	}
	m.items[id] = m.withDeleted(item, nil)
	return nil
}

func (m *memTree[T]) ClearChildrenTrashed(ctx context.Context, parentID string) (int64, error) {
	children, _ := m.ListChildren(ctx, parentID)
	var count int64
	for _, child := range children {
		if child.NodeDeletedAt() != nil {
			m.items[child.NodeID()] = m.withDeleted(child, nil)
			count++
		}
	}
	return count, nil
}

func (m *memTree[T]) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return &domain.NotFoundError{Kind: m.kind, ID: id}
	}
	delete(m.items, id)
	for childID, child := range m.items {
		if parent := child.NodeParentID(); parent != nil && *parent == id {
			m.items[childID] = m.withParent(child, nil, m.position(child))
		}
	}
	return nil
}

func (m *memTree[T]) sorted(keep func(T) bool) []T {
	out := make([]T, 0)
	for _, item := range m.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if m.position(out[i]) != m.position(out[j]) {
			return m.position(out[i]) < m.position(out[j])
		}
		return out[i].NodeID() < out[j].NodeID()
	})
	return out
}

type memTasks struct {
	*memTree[domain.Task]
	listCalls  int
	countCalls int
}

func newMemTasks(tasks ...domain.Task) *memTasks {
	m := &memTasks{memTree: &memTree[domain.Task]{
		kind:  domain.KindTask,
		items: map[string]domain.Task{},
		withParent: func(t domain.Task, parentID *string, position float64) domain.Task {
			t.ParentID = parentID
			t.Position = position
			return t
		},
		withDeleted: func(t domain.Task, at *time.Time) domain.Task {
			t.DeletedAt = at
			return t
		},
		position: func(t domain.Task) float64 { return t.Position },
	}}
	for _, task := range tasks {
		m.items[task.ID] = task
	}
	return m
}

func (m *memTasks) Create(_ context.Context, task domain.Task) error {
	if task.ParentID != nil {
		if _, ok := m.items[*task.ParentID]; !ok {
			return &domain.NotFoundError{Kind: domain.KindTask, ID: *task.ParentID}
		}
	}
	m.items[task.ID] = task
	return nil
}

func (m *memTasks) Update(_ context.Context, workspaceID, taskID string, patch domain.TaskPatch, now time.Time) (domain.Task, error) {
	task, ok := m.items[taskID]
	if !ok || task.WorkspaceID != workspaceID {
		return domain.Task{}, &domain.NotFoundError{Kind: domain.KindTask, ID: taskID}
	}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.ClearAssignee {
		task.AssigneeID = nil
	} else if patch.AssigneeID != nil {
		task.AssigneeID = patch.AssigneeID
	}
	if patch.ClearDueDate {
		task.DueDate = nil
	} else if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}
	if patch.Archived != nil {
		if *patch.Archived {
			task.ArchivedAt = &now
		} else {
			task.ArchivedAt = nil
		}
	}
	task.UpdatedAt = now
	m.items[taskID] = task
	return task, nil
}

func (m *memTasks) UpdateStatus(_ context.Context, workspaceID, taskID string, status domain.TaskStatus) error {
	task, ok := m.items[taskID]
	if !ok || task.WorkspaceID != workspaceID {
		return &domain.NotFoundError{Kind: domain.KindTask, ID: taskID}
	}
	task.Status = status
	m.items[taskID] = task
	return nil
}

func (m *memTasks) List(_ context.Context, workspaceID string, expr filter.Expr, order store.TaskOrder) ([]domain.Task, error) {
	m.listCalls++
	out := m.sorted(func(t domain.Task) bool { return t.WorkspaceID == workspaceID && expr.Match(t) })
	if order == store.OrderUpdatedDesc {
		sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	}
	return out, nil
}

func (m *memTasks) Count(ctx context.Context, workspaceID string, expr filter.Expr) (int, error) {
	m.countCalls++
	count := 0
	for _, task := range m.items {
		if task.WorkspaceID == workspaceID && expr.Match(task) {
			count++
		}
	}
	return count, nil
}

func (m *memTasks) ListBoard(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	return m.sorted(func(t domain.Task) bool {
		return t.WorkspaceID == workspaceID && t.DeletedAt == nil && t.ArchivedAt == nil
	}), nil
}

type memNotes struct {
	*memTree[domain.Note]
}

func newMemNotes(notes ...domain.Note) *memNotes {
	m := &memNotes{memTree: &memTree[domain.Note]{
		kind:  domain.KindNote,
		items: map[string]domain.Note{},
		withParent: func(n domain.Note, parentID *string, position float64) domain.Note {
			n.ParentID = parentID
			n.Position = position
			return n
		},
		withDeleted: func(n domain.Note, at *time.Time) domain.Note {
			n.DeletedAt = at
			return n
		},
		position: func(n domain.Note) float64 { return n.Position },
	}}
	for _, note := range notes {
		m.items[note.ID] = note
	}
	return m
}

func (m *memNotes) Create(_ context.Context, note domain.Note) error {
	m.items[note.ID] = note
	return nil
}

func (m *memNotes) UpdateContent(_ context.Context, workspaceID, noteID string, title *string, content *json.RawMessage, isPublic *bool) (domain.Note, error) {
	note, ok := m.items[noteID]
	if !ok || note.WorkspaceID != workspaceID {
		return domain.Note{}, &domain.NotFoundError{Kind: domain.KindNote, ID: noteID}
	}
	if title != nil {
		note.Title = *title
	}
	if content != nil {
		note.Content = *content
	}
	if isPublic != nil {
		note.IsPublic = *isPublic
	}
	m.items[noteID] = note
	return note, nil
}

type fakeCounts struct {
	values      map[string]int
	invalidated []string
}

func newFakeCounts() *fakeCounts { return &fakeCounts{values: map[string]int{}} }

func (f *fakeCounts) Get(_ context.Context, workspaceID, userID string) (int, bool, error) {
	count, ok := f.values[workspaceID+"/"+userID]
	return count, ok, nil
}

func (f *fakeCounts) Set(_ context.Context, workspaceID, userID string, count int) error {
	f.values[workspaceID+"/"+userID] = count
	return nil
}

func (f *fakeCounts) InvalidateWorkspace(_ context.Context, workspaceID string) error {
	f.invalidated = append(f.invalidated, workspaceID)
	for key := range f.values {
		if len(key) > len(workspaceID) && key[:len(workspaceID)+1] == workspaceID+"/" {
			delete(f.values, key)
		}
	}
	return nil
}

type fakeSearch struct {
	indexed []search.Record
	removed []string
	queries []search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.queries = append(f.queries, q)
	return search.Response{Results: []domain.SearchHit{}, Query: q.Text}
}

func (f *fakeSearch) Index(record search.Record) { f.indexed = append(f.indexed, record) }
func (f *fakeSearch) Remove(id string)           { f.removed = append(f.removed, id) }

type fakeMedia struct {
	refs      []string
	removed   [][]string
	removeErr error
}

func (f *fakeMedia) References(content json.RawMessage) []string {
	if len(content) == 0 {
		return nil
	}
	return f.refs
}

func (f *fakeMedia) Remove(_ context.Context, refs []string) error {
	f.removed = append(f.removed, refs)
	return f.removeErr
}

type testEnv struct {
	svc    *Service
	store  *fakeStore
	tasks  *memTasks
	notes  *memNotes
	counts *fakeCounts
	search *fakeSearch
	media  *fakeMedia
	now    time.Time
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEnv(tasks []domain.Task, notes []domain.Note) *testEnv {
	env := &testEnv{
		store:  &fakeStore{roles: map[string]string{}},
		tasks:  newMemTasks(tasks...),
		notes:  newMemNotes(notes...),
		counts: newFakeCounts(),
		search: &fakeSearch{},
		media:  &fakeMedia{},
		now:    testNow,
	}
	taskTx := func(ctx context.Context, fn func(lifecycle.Store[domain.Task]) error) error { return fn(env.tasks) }
	noteTx := func(ctx context.Context, fn func(lifecycle.Store[domain.Note]) error) error { return fn(env.notes) }
	cfg := config.Config{
		TokenSecret:   "test-secret",
		TriageHorizon: 48 * time.Hour,
		BoardColumns:  domain.TaskStatuses,
	}
	env.svc = newService(cfg, env.store, env.tasks, taskTx, env.notes, noteTx, env.media, env.counts, env.search, zerolog.Nop())
	env.svc.now = func() time.Time { return env.now }
	return env
}

func strPtr(value string) *string { return &value }

func timePtr(value time.Time) *time.Time { return &value }
