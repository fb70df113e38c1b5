package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"canopy/internal/auth"
	"canopy/internal/board"
	"canopy/internal/cache"
	"canopy/internal/config"
	"canopy/internal/domain"
	"canopy/internal/filter"
	"canopy/internal/hierarchy"
	"canopy/internal/lifecycle"
	"canopy/internal/media"
	"canopy/internal/rbac"
	"canopy/internal/search"
	"canopy/internal/store"
	"canopy/internal/triage"
	"canopy/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	Email     string
	JTI       string
	ExpiresAt time.Time
}

type CreateTaskInput struct {
	Title       string          `json:"title"`
	Description json.RawMessage `json:"description"`
	Status      string          `json:"status"`
	Priority    string          `json:"priority"`
	AssigneeID  *string         `json:"assigneeId"`
	DueDate     *time.Time      `json:"dueDate"`
	ParentID    *string         `json:"parentId"`
}

type CreateNoteInput struct {
	Title    string          `json:"title"`
	Content  json.RawMessage `json:"content"`
	IsPublic bool            `json:"isPublic"`
	ParentID *string         `json:"parentId"`
}

type UpdateNoteInput struct {
	Title    *string          `json:"title"`
	Content  *json.RawMessage `json:"content"`
	IsPublic *bool            `json:"isPublic"`
}

type BoardColumn struct {
	Status domain.TaskStatus `json:"status"`
	Cards  []board.Card      `json:"cards"`
}

type TrashView struct {
	Tasks []domain.Task `json:"tasks"`
	Notes []domain.Note `json:"notes"`
}

type dataStore interface {
	WorkspaceRole(ctx context.Context, workspaceID, userID string) (string, error)
	Ping(ctx context.Context) error
}

type taskStore interface {
	lifecycle.Store[domain.Task]
	Create(ctx context.Context, task domain.Task) error
	Update(ctx context.Context, workspaceID, taskID string, patch domain.TaskPatch, now time.Time) (domain.Task, error)
	UpdateStatus(ctx context.Context, workspaceID, taskID string, status domain.TaskStatus) error
	List(ctx context.Context, workspaceID string, expr filter.Expr, order store.TaskOrder) ([]domain.Task, error)
	Count(ctx context.Context, workspaceID string, expr filter.Expr) (int, error)
	ListBoard(ctx context.Context, workspaceID string) ([]domain.Task, error)
	ListActiveChildren(ctx context.Context, workspaceID string, parentID *string) ([]domain.Task, error)
	ListTrashed(ctx context.Context, workspaceID string) ([]domain.Task, error)
}

type noteStore interface {
	lifecycle.Store[domain.Note]
	Create(ctx context.Context, note domain.Note) error
	UpdateContent(ctx context.Context, workspaceID, noteID string, title *string, content *json.RawMessage, isPublic *bool) (domain.Note, error)
	ListActiveChildren(ctx context.Context, workspaceID string, parentID *string) ([]domain.Note, error)
	ListTrashed(ctx context.Context, workspaceID string) ([]domain.Note, error)
}

type countCache interface {
	Get(ctx context.Context, workspaceID, userID string) (int, bool, error)
	Set(ctx context.Context, workspaceID, userID string, count int) error
	InvalidateWorkspace(ctx context.Context, workspaceID string) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	Index(record search.Record)
	Remove(id string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	tasks    taskStore
	notes    noteStore
	taskTree *hierarchy.Manager[domain.Task]
	noteTree *hierarchy.Manager[domain.Note]
	taskLife *lifecycle.Machine[domain.Task]
	noteLife *lifecycle.Machine[domain.Note]
	counts   countCache
	search   searchIndex
	tokens   *auth.Verifier
	now      func() time.Time
	log      zerolog.Logger
}

func New(cfg config.Config, dataStore *store.PostgresStore, counts *cache.InboxCounts, searchService *search.Service, cleaner *media.Cleaner, logger zerolog.Logger) *Service {
	tasks := dataStore.Tasks()
	notes := dataStore.Notes()
	taskTx := func(ctx context.Context, fn func(lifecycle.Store[domain.Task]) error) error {
		return tasks.InTx(ctx, func(tx *store.TaskRepo) error { return fn(tx) })
	}
	noteTx := func(ctx context.Context, fn func(lifecycle.Store[domain.Note]) error) error {
		return notes.InTx(ctx, func(tx *store.NoteRepo) error { return fn(tx) })
	}

	var mediaCleanup lifecycle.Media
	if cleaner != nil {
		mediaCleanup = cleaner
	}
	var cached countCache
	if counts != nil {
		cached = counts
	}
	if searchService == nil {
		searchService = search.NewService(nil, dataStore, logger)
	}
	return newService(cfg, dataStore, tasks, taskTx, notes, noteTx, mediaCleanup, cached, searchService, logger)
}

func newService(
	cfg config.Config,
	ds dataStore,
	tasks taskStore,
	taskTx lifecycle.UnitOfWork[domain.Task],
	notes noteStore,
	noteTx lifecycle.UnitOfWork[domain.Note],
	mediaCleanup lifecycle.Media,
	counts countCache,
	searchService searchIndex,
	logger zerolog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		store:    ds,
		tasks:    tasks,
		notes:    notes,
		taskTree: hierarchy.New[domain.Task](domain.KindTask, tasks, logger),
		noteTree: hierarchy.New[domain.Note](domain.KindNote, notes, logger),
		taskLife: lifecycle.New[domain.Task](domain.KindTask, tasks, taskTx, mediaCleanup, logger),
		noteLife: lifecycle.New[domain.Note](domain.KindNote, notes, noteTx, mediaCleanup, logger),
		counts:   counts,
		search:   searchService,
		tokens:   auth.NewVerifier(cfg.TokenSecret, auth.DefaultLeeway),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger,
	}
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		Email:     claims.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) WorkspaceRole(ctx context.Context, workspaceID, userID string) (rbac.Role, error) {
	role, err := s.store.WorkspaceRole(ctx, workspaceID, userID)
	if err != nil {
		return rbac.RoleNone, err
	}
	return rbac.Normalize(role), nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Tasks

func (s *Service) CreateTask(ctx context.Context, workspaceID, userID string, input CreateTaskInput) (domain.Task, error) {
	status := domain.StatusTodo
	if raw := strings.TrimSpace(input.Status); raw != "" {
		status = domain.TaskStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return domain.Task{}, validationError("status is not a known task status")
		}
	}
	priority := domain.PriorityNone
	if raw := strings.TrimSpace(input.Priority); raw != "" {
		priority = domain.Priority(strings.ToUpper(raw))
		if !priority.Valid() {
			return domain.Task{}, validationError("priority is not a known priority")
		}
	}
	parentID := normalizeParent(input.ParentID)
	if parentID != nil {
		if _, err := findInWorkspace[domain.Task](ctx, s.tasks, domain.KindTask, workspaceID, *parentID); err != nil {
			return domain.Task{}, err
		}
	}

	position, err := s.taskTree.AppendToEnd(ctx, workspaceID, parentID)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.now()
	task := domain.Task{
		ID:          util.NewID("tsk"),
		WorkspaceID: workspaceID,
		ParentID:    parentID,
		Position:    position,
		CreatedByID: userID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      status,
		Priority:    priority,
		AssigneeID:  normalizeParent(input.AssigneeID),
		DueDate:     utcPtr(input.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return domain.Task{}, err
	}
	s.tasksChanged(ctx, workspaceID)
	s.search.Index(search.TaskRecord(task))
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, workspaceID, taskID string) (domain.Task, error) {
	return findInWorkspace[domain.Task](ctx, s.tasks, domain.KindTask, workspaceID, taskID)
}

func (s *Service) UpdateTask(ctx context.Context, workspaceID, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	if patch.Priority != nil && !patch.Priority.Valid() {
		return domain.Task{}, validationError("priority is not a known priority")
	}
	task, err := s.tasks.Update(ctx, workspaceID, taskID, patch, s.now())
	if err != nil {
		return domain.Task{}, err
	}
	s.tasksChanged(ctx, workspaceID)
	s.search.Index(search.TaskRecord(task))
	return task, nil
}

// UpdateTaskStatus is the board commit: it persists the status and nothing
// else about the card.
func (s *Service) UpdateTaskStatus(ctx context.Context, workspaceID, taskID string, status domain.TaskStatus) error {
	if !status.Valid() {
		return validationError("status is not a known task status")
	}
	if err := s.tasks.UpdateStatus(ctx, workspaceID, taskID, status); err != nil {
		return err
	}
	s.tasksChanged(ctx, workspaceID)
	return nil
}

func (s *Service) MoveTask(ctx context.Context, workspaceID, taskID string, parentID *string) (domain.Task, error) {
	if _, err := findInWorkspace[domain.Task](ctx, s.tasks, domain.KindTask, workspaceID, taskID); err != nil {
		return domain.Task{}, err
	}
	if err := s.taskTree.Reparent(ctx, taskID, normalizeParent(parentID)); err != nil {
		return domain.Task{}, err
	}
	s.tasksChanged(ctx, workspaceID)
	return s.tasks.FindByID(ctx, taskID)
}

func (s *Service) TrashTask(ctx context.Context, workspaceID, taskID string, cascadeChildren bool) error {
	if _, err := findInWorkspace[domain.Task](ctx, s.tasks, domain.KindTask, workspaceID, taskID); err != nil {
		return err
	}
	var cascaded []domain.Task
	if cascadeChildren {
		children, err := s.tasks.ListChildren(ctx, taskID)
		if err != nil {
			return err
		}
		cascaded = activeOnly(children)
	}
	if err := s.taskLife.Trash(ctx, taskID, cascadeChildren); err != nil {
		return err
	}
	s.tasksChanged(ctx, workspaceID)
	s.search.Remove(taskID)
	for _, child := range cascaded {
		s.search.Remove(child.ID)
	}
	return nil
}

func (s *Service) RestoreTask(ctx context.Context, workspaceID, taskID string) (domain.Task, error) {
	if _, err := findInWorkspace[domain.Task](ctx, s.tasks, domain.KindTask, workspaceID, taskID); err != nil {
		return domain.Task{}, err
	}
	if err := s.taskLife.Restore(ctx, taskID); err != nil {
		return domain.Task{}, err
	}
	s.tasksChanged(ctx, workspaceID)

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	s.search.Index(search.TaskRecord(task))
	if children, err := s.tasks.ListChildren(ctx, taskID); err == nil {
		for _, child := range activeOnly(children) {
			s.search.Index(search.TaskRecord(child))
		}
	}
	return task, nil
}

func (s *Service) PurgeTask(ctx context.Context, workspaceID, taskID string) error {
	if _, err := findInWorkspace[domain.Task](ctx, s.tasks, domain.KindTask, workspaceID, taskID); err != nil {
		return err
	}
	if err := s.taskLife.Purge(ctx, taskID); err != nil {
		return err
	}
	s.tasksChanged(ctx, workspaceID)
	s.search.Remove(taskID)
	return nil
}

// TaskChildren lists active children of parentID; nil lists the roots.
func (s *Service) TaskChildren(ctx context.Context, workspaceID string, parentID *string) ([]domain.Task, error) {
	if parentID != nil {
		if _, err := findInWorkspace[domain.Task](ctx, s.tasks, domain.KindTask, workspaceID, *parentID); err != nil {
			return nil, err
		}
	}
	return s.tasks.ListActiveChildren(ctx, workspaceID, parentID)
}

// Board returns the workspace's tasks grouped into the configured columns in
// server position order.
func (s *Service) Board(ctx context.Context, workspaceID string) ([]BoardColumn, error) {
	tasks, err := s.tasks.ListBoard(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	b := board.New(tasks, s.cfg.BoardColumns...)
	columns := make([]BoardColumn, 0, len(b.Columns()))
	for _, status := range b.Columns() {
		cards := b.Column(status)
		if cards == nil {
			cards = []board.Card{}
		}
		columns = append(columns, BoardColumn{Status: status, Cards: cards})
	}
	return columns, nil
}

// Triage

func (s *Service) Inbox(ctx context.Context, workspaceID, userID string) ([]triage.Entry, error) {
	now := s.now()
	tasks, err := s.tasks.List(ctx, workspaceID, triage.InboxPredicate(userID, now, s.cfg.TriageHorizon), store.OrderUpdatedDesc)
	if err != nil {
		return nil, err
	}
	return triage.Inbox(tasks, now, s.cfg.TriageHorizon, userID), nil
}

// InboxCount counts the same candidate set Inbox lists. A cached value is
// served while it lives.
func (s *Service) InboxCount(ctx context.Context, workspaceID, userID string) (int, error) {
	if s.counts != nil {
		count, ok, err := s.counts.Get(ctx, workspaceID, userID)
		if err != nil {
			s.log.Warn().Err(err).Str("workspace_id", workspaceID).Msg("inbox count cache read failed")
		} else if ok {
			return count, nil
		}
	}

	count, err := s.tasks.Count(ctx, workspaceID, triage.InboxPredicate(userID, s.now(), s.cfg.TriageHorizon))
	if err != nil {
		return 0, err
	}
	if s.counts != nil {
		if err := s.counts.Set(ctx, workspaceID, userID, count); err != nil {
			s.log.Warn().Err(err).Str("workspace_id", workspaceID).Msg("inbox count cache write failed")
		}
	}
	return count, nil
}

func (s *Service) Snoozed(ctx context.Context, workspaceID, userID string) ([]triage.Entry, error) {
	tasks, err := s.tasks.List(ctx, workspaceID, triage.SnoozedPredicate(userID, s.now(), s.cfg.TriageHorizon), store.OrderDueAsc)
	if err != nil {
		return nil, err
	}
	return triage.Snoozed(tasks), nil
}

// Notes

func (s *Service) CreateNote(ctx context.Context, workspaceID, userID string, input CreateNoteInput) (domain.Note, error) {
	parentID := normalizeParent(input.ParentID)
	if parentID != nil {
		if _, err := findInWorkspace[domain.Note](ctx, s.notes, domain.KindNote, workspaceID, *parentID); err != nil {
			return domain.Note{}, err
		}
	}
	position, err := s.noteTree.AppendToEnd(ctx, workspaceID, parentID)
	if err != nil {
		return domain.Note{}, err
	}
	now := s.now()
	note := domain.Note{
		ID:          util.NewID("nte"),
		WorkspaceID: workspaceID,
		ParentID:    parentID,
		Position:    position,
		CreatedByID: userID,
		Title:       strings.TrimSpace(input.Title),
		Content:     input.Content,
		IsPublic:    input.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return domain.Note{}, err
	}
	s.search.Index(search.NoteRecord(note))
	return note, nil
}

func (s *Service) GetNote(ctx context.Context, workspaceID, noteID string) (domain.Note, error) {
	return findInWorkspace[domain.Note](ctx, s.notes, domain.KindNote, workspaceID, noteID)
}

func (s *Service) UpdateNote(ctx context.Context, workspaceID, noteID string, input UpdateNoteInput) (domain.Note, error) {
	note, err := s.notes.UpdateContent(ctx, workspaceID, noteID, input.Title, input.Content, input.IsPublic)
	if err != nil {
		return domain.Note{}, err
	}
	s.search.Index(search.NoteRecord(note))
	return note, nil
}

func (s *Service) MoveNote(ctx context.Context, workspaceID, noteID string, parentID *string) (domain.Note, error) {
	if _, err := findInWorkspace[domain.Note](ctx, s.notes, domain.KindNote, workspaceID, noteID); err != nil {
		return domain.Note{}, err
	}
	if err := s.noteTree.Reparent(ctx, noteID, normalizeParent(parentID)); err != nil {
		return domain.Note{}, err
	}
	return s.notes.FindByID(ctx, noteID)
}

// TrashNote always takes the note's direct children with it.
func (s *Service) TrashNote(ctx context.Context, workspaceID, noteID string) error {
	if _, err := findInWorkspace[domain.Note](ctx, s.notes, domain.KindNote, workspaceID, noteID); err != nil {
		return err
	}
	children, err := s.notes.ListChildren(ctx, noteID)
	if err != nil {
		return err
	}
	if err := s.noteLife.Trash(ctx, noteID, true); err != nil {
		return err
	}
	s.search.Remove(noteID)
	for _, child := range activeOnly(children) {
		s.search.Remove(child.ID)
	}
	return nil
}

func (s *Service) RestoreNote(ctx context.Context, workspaceID, noteID string) (domain.Note, error) {
	if _, err := findInWorkspace[domain.Note](ctx, s.notes, domain.KindNote, workspaceID, noteID); err != nil {
		return domain.Note{}, err
	}
	if err := s.noteLife.Restore(ctx, noteID); err != nil {
		return domain.Note{}, err
	}
	note, err := s.notes.FindByID(ctx, noteID)
	if err != nil {
		return domain.Note{}, err
	}
	s.search.Index(search.NoteRecord(note))
	if children, err := s.notes.ListChildren(ctx, noteID); err == nil {
		for _, child := range activeOnly(children) {
			s.search.Index(search.NoteRecord(child))
		}
	}
	return note, nil
}

func (s *Service) PurgeNote(ctx context.Context, workspaceID, noteID string) error {
	if _, err := findInWorkspace[domain.Note](ctx, s.notes, domain.KindNote, workspaceID, noteID); err != nil {
		return err
	}
	if err := s.noteLife.Purge(ctx, noteID); err != nil {
		return err
	}
	s.search.Remove(noteID)
	return nil
}

func (s *Service) NoteChildren(ctx context.Context, workspaceID string, parentID *string) ([]domain.Note, error) {
	if parentID != nil {
		if _, err := findInWorkspace[domain.Note](ctx, s.notes, domain.KindNote, workspaceID, *parentID); err != nil {
			return nil, err
		}
	}
	return s.notes.ListActiveChildren(ctx, workspaceID, parentID)
}

// Workspace-wide views

func (s *Service) Trash(ctx context.Context, workspaceID string) (TrashView, error) {
	tasks, err := s.tasks.ListTrashed(ctx, workspaceID)
	if err != nil {
		return TrashView{}, err
	}
	notes, err := s.notes.ListTrashed(ctx, workspaceID)
	if err != nil {
		return TrashView{}, err
	}
	return TrashView{Tasks: tasks, Notes: notes}, nil
}

func (s *Service) Search(ctx context.Context, workspaceID, text, kind string, limit int) (search.Response, error) {
	query := search.Query{Text: strings.TrimSpace(text), WorkspaceID: workspaceID, Limit: limit}
	if kind = strings.TrimSpace(kind); kind != "" {
		query.Kind = domain.Kind(kind)
		if query.Kind != domain.KindTask && query.Kind != domain.KindNote {
			return search.Response{}, validationError("type must be task or note")
		}
	}
	if query.Text == "" {
		return search.Response{Results: []domain.SearchHit{}, Query: query.Text}, nil
	}
	return s.search.Search(ctx, query), nil
}

// tasksChanged drops cached inbox counts after any task write.
func (s *Service) tasksChanged(ctx context.Context, workspaceID string) {
	if s.counts == nil {
		return
	}
	if err := s.counts.InvalidateWorkspace(ctx, workspaceID); err != nil {
		s.log.Warn().Err(err).Str("workspace_id", workspaceID).Msg("inbox count invalidation failed")
	}
}

// findInWorkspace loads an item and hides items of other workspaces as not found.
func findInWorkspace[T domain.Node](ctx context.Context, items hierarchy.Store[T], kind domain.Kind, workspaceID, id string) (T, error) {
	item, err := items.FindByID(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	if item.NodeWorkspaceID() != workspaceID {
		var zero T
		return zero, &domain.NotFoundError{Kind: kind, ID: id}
	}
	return item, nil
}

func activeOnly[T domain.Node](items []T) []T {
	active := make([]T, 0, len(items))
	for _, item := range items {
		if item.NodeDeletedAt() == nil {
			active = append(active, item)
		}
	}
	return active
}

func normalizeParent(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := value.UTC()
	return &v
}
