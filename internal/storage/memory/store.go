// Package memory is an in-process storage backend. Transactions stage their
// writes and commit atomically under a single lock after re-checking every
// version they depended on, so concurrent writers observe the same conflict
// semantics as the postgres backend.
package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"vetting/internal/audit"
	"vetting/internal/domain"
	"vetting/internal/storage"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/sentinel"
)

// Store holds committed state.
type Store struct {
	mu       sync.RWMutex
	apps     map[id.ApplicationID]*domain.Application
	tasks    map[id.TaskID]*domain.Task
	docs     map[id.DocumentID]*domain.Document
	escs     map[id.EscalationID]*domain.Escalation
	comments []*domain.Comment
	entries  []audit.Entry
	byEntity map[string][]int
	seq      int64

	auditHook func(*audit.Entry) error
}

type Option func(*Store)

// WithAuditHook runs fn before each audit append; a non-nil error fails the
// append. Used to exercise rollback on audit persistence failure.
func WithAuditHook(fn func(*audit.Entry) error) Option {
	return func(s *Store) {
		s.auditHook = fn
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		apps:     make(map[id.ApplicationID]*domain.Application),
		tasks:    make(map[id.TaskID]*domain.Task),
		docs:     make(map[id.DocumentID]*domain.Document),
		escs:     make(map[id.EscalationID]*domain.Escalation),
		byEntity: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx stages all writes made by fn and commits them atomically.
func (s *Store) RunInTx(ctx context.Context, fn func(st storage.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTxn(s, false)
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

// Non-transactional accessors commit each write immediately.
func (s *Store) Applications() storage.ApplicationStore { return newTxn(s, true).Applications() }
func (s *Store) Tasks() storage.TaskStore               { return newTxn(s, true).Tasks() }
func (s *Store) Documents() storage.DocumentStore       { return newTxn(s, true).Documents() }
func (s *Store) Escalations() storage.EscalationStore   { return newTxn(s, true).Escalations() }
func (s *Store) Comments() storage.CommentStore         { return newTxn(s, true).Comments() }
func (s *Store) Audit() storage.AuditStore              { return newTxn(s, true).Audit() }

var _ storage.Backend = (*Store)(nil)

// staged tracks a pending write and the committed version it was based on.
type staged[T any] struct {
	value       T
	baseVersion int64
	created     bool
}

type txn struct {
	s    *Store
	auto bool

	apps     map[id.ApplicationID]*staged[*domain.Application]
	tasks    map[id.TaskID]*staged[*domain.Task]
	docs     map[id.DocumentID]*staged[*domain.Document]
	escs     map[id.EscalationID]*staged[*domain.Escalation]
	comments []*domain.Comment
	entries  []*audit.Entry
}

func newTxn(s *Store, auto bool) *txn {
	t := &txn{s: s, auto: auto}
	t.reset()
	return t
}

func (t *txn) reset() {
	t.apps = make(map[id.ApplicationID]*staged[*domain.Application])
	t.tasks = make(map[id.TaskID]*staged[*domain.Task])
	t.docs = make(map[id.DocumentID]*staged[*domain.Document])
	t.escs = make(map[id.EscalationID]*staged[*domain.Escalation])
	t.comments = nil
	t.entries = nil
}

func (t *txn) Applications() storage.ApplicationStore { return applications{t} }
func (t *txn) Tasks() storage.TaskStore               { return tasks{t} }
func (t *txn) Documents() storage.DocumentStore       { return documents{t} }
func (t *txn) Escalations() storage.EscalationStore   { return escalations{t} }
func (t *txn) Comments() storage.CommentStore         { return comments{t} }
func (t *txn) Audit() storage.AuditStore              { return auditLog{t} }

// done commits immediately in autocommit mode.
func (t *txn) done() error {
	if !t.auto {
		return nil
	}
	err := t.commit()
	t.reset()
	return err
}

func (t *txn) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.validate(); err != nil {
		return err
	}

	for k, st := range t.apps {
		s.apps[k] = cloneApplication(st.value)
	}
	for k, st := range t.tasks {
		s.tasks[k] = cloneTask(st.value)
	}
	for k, st := range t.docs {
		s.docs[k] = cloneDocument(st.value)
	}
	for k, st := range t.escs {
		s.escs[k] = cloneEscalation(st.value)
	}
	for _, c := range t.comments {
		s.comments = append(s.comments, cloneComment(c))
	}
	for _, e := range t.entries {
		s.seq++
		e.Seq = s.seq
		s.entries = append(s.entries, cloneEntry(*e))
		s.byEntity[e.EntityID] = append(s.byEntity[e.EntityID], len(s.entries)-1)
	}
	return nil
}

// validate re-checks optimistic versions, references and audit heads.
// Caller holds s.mu.
func (t *txn) validate() error {
	s := t.s
	for k, st := range t.apps {
		if err := checkBase(s.apps, k, st, appVersion); err != nil {
			return err
		}
	}
	for k, st := range t.tasks {
		if err := checkBase(s.tasks, k, st, taskVersion); err != nil {
			return err
		}
		if !t.appExistsLocked(st.value.ApplicationID) {
			return sentinel.ErrReferenceMissing
		}
	}
	for k, st := range t.docs {
		if err := checkBase(s.docs, k, st, docVersion); err != nil {
			return err
		}
		if !t.appExistsLocked(st.value.ApplicationID) {
			return sentinel.ErrReferenceMissing
		}
		if st.value.TaskID != nil && !t.taskExistsLocked(*st.value.TaskID) {
			return sentinel.ErrReferenceMissing
		}
	}
	for k, st := range t.escs {
		if err := checkBase(s.escs, k, st, escVersion); err != nil {
			return err
		}
		if !t.appExistsLocked(st.value.ApplicationID) {
			return sentinel.ErrReferenceMissing
		}
	}
	for _, c := range t.comments {
		if !t.appExistsLocked(c.ApplicationID) {
			return sentinel.ErrReferenceMissing
		}
	}
	seen := make(map[string]bool)
	for _, e := range t.entries {
		if seen[e.EntityID] {
			continue
		}
		seen[e.EntityID] = true
		var headSeq int64
		if idx := s.byEntity[e.EntityID]; len(idx) > 0 {
			headSeq = s.entries[idx[len(idx)-1]].EntitySeq
		}
		if e.EntitySeq != headSeq+1 {
			return sentinel.ErrConflict
		}
	}
	return nil
}

func checkBase[K comparable, T any](base map[K]T, key K, st *staged[T], version func(T) int64) error {
	current, exists := base[key]
	if st.created {
		if exists {
			return sentinel.ErrDuplicate
		}
		return nil
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	if version(current) != st.baseVersion {
		return sentinel.ErrConflict
	}
	return nil
}

func (t *txn) appExistsLocked(appID id.ApplicationID) bool {
	if _, ok := t.apps[appID]; ok {
		return true
	}
	_, ok := t.s.apps[appID]
	return ok
}

func (t *txn) taskExistsLocked(taskID id.TaskID) bool {
	if _, ok := t.tasks[taskID]; ok {
		return true
	}
	_, ok := t.s.tasks[taskID]
	return ok
}

// stageUpdate checks the entity against the current (staged or committed)
// version and stages it.
func stageUpdate[K comparable, T any](t *txn, m map[K]*staged[T], base map[K]T, key K, value T, version func(T) int64) error {
	if st, ok := m[key]; ok {
		if version(st.value)+1 != version(value) {
			return sentinel.ErrConflict
		}
		st.value = value
		return nil
	}
	t.s.mu.RLock()
	current, ok := base[key]
	t.s.mu.RUnlock()
	if !ok {
		return sentinel.ErrNotFound
	}
	if version(current)+1 != version(value) {
		return sentinel.ErrConflict
	}
	m[key] = &staged[T]{value: value, baseVersion: version(current)}
	return nil
}

func stageCreate[K comparable, T any](t *txn, m map[K]*staged[T], base map[K]T, key K, value T, version func(T) int64) error {
	if version(value) != 1 {
		return sentinel.ErrConflict
	}
	if _, ok := m[key]; ok {
		return sentinel.ErrDuplicate
	}
	t.s.mu.RLock()
	_, exists := base[key]
	t.s.mu.RUnlock()
	if exists {
		return sentinel.ErrDuplicate
	}
	m[key] = &staged[T]{value: value, created: true}
	return nil
}

// --- applications ---

type applications struct{ t *txn }

func (r applications) Create(_ context.Context, app *domain.Application) error {
	if err := stageCreate(r.t, r.t.apps, r.t.s.apps, app.ID, cloneApplication(app), appVersion); err != nil {
		return err
	}
	return r.t.done()
}

func (r applications) Get(_ context.Context, appID id.ApplicationID) (*domain.Application, error) {
	if st, ok := r.t.apps[appID]; ok {
		return cloneApplication(st.value), nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	app, ok := r.t.s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneApplication(app), nil
}

func (r applications) Update(_ context.Context, app *domain.Application) error {
	if err := stageUpdate(r.t, r.t.apps, r.t.s.apps, app.ID, cloneApplication(app), appVersion); err != nil {
		return err
	}
	return r.t.done()
}

func (r applications) List(_ context.Context, filter storage.ApplicationFilter) ([]*domain.Application, error) {
	merged := make(map[id.ApplicationID]*domain.Application)
	r.t.s.mu.RLock()
	for k, v := range r.t.s.apps {
		merged[k] = v
	}
	r.t.s.mu.RUnlock()
	for k, st := range r.t.apps {
		merged[k] = st.value
	}
	out := make([]*domain.Application, 0, len(merged))
	for _, app := range merged {
		if filter.Matches(app) {
			out = append(out, cloneApplication(app))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- tasks ---

type tasks struct{ t *txn }

func (r tasks) Create(_ context.Context, task *domain.Task) error {
	if err := stageCreate(r.t, r.t.tasks, r.t.s.tasks, task.ID, cloneTask(task), taskVersion); err != nil {
		return err
	}
	return r.t.done()
}

func (r tasks) Get(_ context.Context, taskID id.TaskID) (*domain.Task, error) {
	if st, ok := r.t.tasks[taskID]; ok {
		return cloneTask(st.value), nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	task, ok := r.t.s.tasks[taskID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneTask(task), nil
}

func (r tasks) Update(_ context.Context, task *domain.Task) error {
	if err := stageUpdate(r.t, r.t.tasks, r.t.s.tasks, task.ID, cloneTask(task), taskVersion); err != nil {
		return err
	}
	return r.t.done()
}

func (r tasks) all() map[id.TaskID]*domain.Task {
	merged := make(map[id.TaskID]*domain.Task)
	r.t.s.mu.RLock()
	for k, v := range r.t.s.tasks {
		merged[k] = v
	}
	r.t.s.mu.RUnlock()
	for k, st := range r.t.tasks {
		merged[k] = st.value
	}
	return merged
}

func (r tasks) ListByApplication(_ context.Context, appID id.ApplicationID) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, task := range r.all() {
		if task.ApplicationID == appID {
			out = append(out, cloneTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].Type.Rank() != out[j].Type.Rank() {
			return out[i].Type.Rank() < out[j].Type.Rank()
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r tasks) CountOpenByOfficer(_ context.Context, officerID id.OfficerID) (int, error) {
	n := 0
	for _, task := range r.all() {
		if !task.Status.IsTerminal() && task.IsOwnedBy(officerID) {
			n++
		}
	}
	return n, nil
}

// --- documents ---

type documents struct{ t *txn }

func (r documents) Create(_ context.Context, doc *domain.Document) error {
	if err := stageCreate(r.t, r.t.docs, r.t.s.docs, doc.ID, cloneDocument(doc), docVersion); err != nil {
		return err
	}
	return r.t.done()
}

func (r documents) Get(_ context.Context, docID id.DocumentID) (*domain.Document, error) {
	if st, ok := r.t.docs[docID]; ok {
		return cloneDocument(st.value), nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	doc, ok := r.t.s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (r documents) Update(_ context.Context, doc *domain.Document) error {
	if err := stageUpdate(r.t, r.t.docs, r.t.s.docs, doc.ID, cloneDocument(doc), docVersion); err != nil {
		return err
	}
	return r.t.done()
}

func (r documents) all() map[id.DocumentID]*domain.Document {
	merged := make(map[id.DocumentID]*domain.Document)
	r.t.s.mu.RLock()
	for k, v := range r.t.s.docs {
		merged[k] = v
	}
	r.t.s.mu.RUnlock()
	for k, st := range r.t.docs {
		merged[k] = st.value
	}
	return merged
}

func (r documents) ListByApplication(_ context.Context, appID id.ApplicationID) ([]*domain.Document, error) {
	var out []*domain.Document
	for _, doc := range r.all() {
		if doc.ApplicationID == appID {
			out = append(out, cloneDocument(doc))
		}
	}
	sortDocuments(out)
	return out, nil
}

func (r documents) ListExpiring(_ context.Context, now time.Time, limit int) ([]*domain.Document, error) {
	var out []*domain.Document
	for _, doc := range r.all() {
		if doc.IsExpiredAt(now) {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(*out[j].ExpiresAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortDocuments(docs []*domain.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.Before(docs[j].UploadedAt)
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})
}

// --- escalations ---

type escalations struct{ t *txn }

func (r escalations) Create(_ context.Context, esc *domain.Escalation) error {
	if err := stageCreate(r.t, r.t.escs, r.t.s.escs, esc.ID, cloneEscalation(esc), escVersion); err != nil {
		return err
	}
	return r.t.done()
}

func (r escalations) Get(_ context.Context, escID id.EscalationID) (*domain.Escalation, error) {
	if st, ok := r.t.escs[escID]; ok {
		return cloneEscalation(st.value), nil
	}
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	esc, ok := r.t.s.escs[escID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEscalation(esc), nil
}

func (r escalations) Update(_ context.Context, esc *domain.Escalation) error {
	if err := stageUpdate(r.t, r.t.escs, r.t.s.escs, esc.ID, cloneEscalation(esc), escVersion); err != nil {
		return err
	}
	return r.t.done()
}

func (r escalations) List(_ context.Context, filter storage.EscalationFilter) ([]*domain.Escalation, error) {
	merged := make(map[id.EscalationID]*domain.Escalation)
	r.t.s.mu.RLock()
	for k, v := range r.t.s.escs {
		merged[k] = v
	}
	r.t.s.mu.RUnlock()
	for k, st := range r.t.escs {
		merged[k] = st.value
	}
	var out []*domain.Escalation
	for _, esc := range merged {
		if filter.Matches(esc) {
			out = append(out, cloneEscalation(esc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- comments ---

type comments struct{ t *txn }

func (r comments) Create(_ context.Context, c *domain.Comment) error {
	r.t.s.mu.RLock()
	dup := slices.ContainsFunc(r.t.s.comments, func(existing *domain.Comment) bool { return existing.ID == c.ID })
	r.t.s.mu.RUnlock()
	if dup || slices.ContainsFunc(r.t.comments, func(existing *domain.Comment) bool { return existing.ID == c.ID }) {
		return sentinel.ErrDuplicate
	}
	r.t.comments = append(r.t.comments, cloneComment(c))
	return r.t.done()
}

func (r comments) ListByApplication(_ context.Context, appID id.ApplicationID) ([]*domain.Comment, error) {
	var out []*domain.Comment
	r.t.s.mu.RLock()
	for _, c := range r.t.s.comments {
		if c.ApplicationID == appID {
			out = append(out, cloneComment(c))
		}
	}
	r.t.s.mu.RUnlock()
	for _, c := range r.t.comments {
		if c.ApplicationID == appID {
			out = append(out, cloneComment(c))
		}
	}
	return out, nil
}

// --- audit ---

type auditLog struct{ t *txn }

func (r auditLog) Append(_ context.Context, e *audit.Entry) error {
	if hook := r.t.s.auditHook; hook != nil {
		if err := hook(e); err != nil {
			return err
		}
	}
	var head *audit.Entry
	for i := len(r.t.entries) - 1; i >= 0; i-- {
		if r.t.entries[i].EntityID == e.EntityID {
			head = r.t.entries[i]
			break
		}
	}
	if head == nil {
		r.t.s.mu.RLock()
		if idx := r.t.s.byEntity[e.EntityID]; len(idx) > 0 {
			h := r.t.s.entries[idx[len(idx)-1]]
			head = &h
		}
		r.t.s.mu.RUnlock()
	}
	if err := audit.Chain(e, head); err != nil {
		return err
	}
	staged := cloneEntry(*e)
	r.t.entries = append(r.t.entries, &staged)
	if err := r.t.done(); err != nil {
		return err
	}
	if r.t.auto {
		e.Seq = staged.Seq
	}
	return nil
}

func (r auditLog) ListByEntity(_ context.Context, entityID string) ([]audit.Entry, error) {
	r.t.s.mu.RLock()
	idx := r.t.s.byEntity[entityID]
	out := make([]audit.Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, cloneEntry(r.t.s.entries[i]))
	}
	r.t.s.mu.RUnlock()
	for _, e := range r.t.entries {
		if e.EntityID == entityID {
			out = append(out, cloneEntry(*e))
		}
	}
	return out, nil
}

func (r auditLog) ListSince(_ context.Context, afterSeq int64, limit int) ([]audit.Entry, error) {
	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range r.t.s.entries {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, cloneEntry(e))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- copies ---

func appVersion(a *domain.Application) int64 { return a.Version }
func taskVersion(t *domain.Task) int64       { return t.Version }
func docVersion(d *domain.Document) int64    { return d.Version }
func escVersion(e *domain.Escalation) int64  { return e.Version }

func ptr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func raw(m json.RawMessage) json.RawMessage {
	if m == nil {
		return nil
	}
	return append(json.RawMessage(nil), m...)
}

func cloneApplication(a *domain.Application) *domain.Application {
	c := *a
	c.CompanyID = ptr(a.CompanyID)
	c.PrimaryOfficerID = ptr(a.PrimaryOfficerID)
	c.SecondaryOfficerID = ptr(a.SecondaryOfficerID)
	c.CompletedAt = ptr(a.CompletedAt)
	c.Payload = raw(a.Payload)
	return &c
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.RequiredDocuments = slices.Clone(t.RequiredDocuments)
	c.AssignedOfficerID = ptr(t.AssignedOfficerID)
	c.Result = ptr(t.Result)
	c.Findings = raw(t.Findings)
	c.HeldBy = ptr(t.HeldBy)
	c.SupersededBy = ptr(t.SupersededBy)
	c.StartedAt = ptr(t.StartedAt)
	c.CompletedAt = ptr(t.CompletedAt)
	return &c
}

func cloneDocument(d *domain.Document) *domain.Document {
	c := *d
	c.TaskID = ptr(d.TaskID)
	c.VerifiedBy = ptr(d.VerifiedBy)
	c.VerifiedAt = ptr(d.VerifiedAt)
	c.ExpiresAt = ptr(d.ExpiresAt)
	return &c
}

func cloneEscalation(e *domain.Escalation) *domain.Escalation {
	c := *e
	c.TaskID = ptr(e.TaskID)
	c.ParentID = ptr(e.ParentID)
	c.ResolvedBy = ptr(e.ResolvedBy)
	c.ResolvedAt = ptr(e.ResolvedAt)
	return &c
}

func cloneComment(cm *domain.Comment) *domain.Comment {
	c := *cm
	c.TaskID = ptr(cm.TaskID)
	return &c
}

func cloneEntry(e audit.Entry) audit.Entry {
	c := e
	c.Previous = raw(e.Previous)
	c.Next = raw(e.Next)
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}
