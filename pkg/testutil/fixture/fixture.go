// Package fixture assembles an in-memory engine environment for package tests:
// a memory store, leases, an event recorder and a seeded officer directory.
package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"vetting/internal/audit"
	"vetting/internal/directory"
	"vetting/internal/domain"
	"vetting/internal/events"
	"vetting/internal/lock"
	"vetting/internal/platform/metrics"
	"vetting/internal/storage"
	"vetting/internal/storage/memory"
	"vetting/internal/workflow"
	id "vetting/pkg/domain"
	"vetting/pkg/platform/clock"
	"vetting/pkg/platform/retry"
)

// Start is the fixed time every environment begins at.
var Start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Officer names seeded into every environment.
const (
	Junior   = "junior"   // access 1, secret, identity/background/reference/interview
	Analyst  = "analyst"  // access 2, confidential, identity/financial/credential/reference/skills
	Senior   = "senior"   // access 3, top secret, everything but skills assessment
	Chief    = "chief"    // access 5, top secret, everything
	Inactive = "inactive" // access 2, deactivated
)

type Env struct {
	Ctx       context.Context
	Clock     *clock.Manual
	Store     *memory.Store
	Locker    *lock.Memory
	Events    *events.Recorder
	Metrics   *metrics.Metrics
	Runner    *workflow.Runner
	Directory *directory.Service
	Company   *domain.Company
	Officers  map[string]*domain.Officer
}

func New(t testing.TB, opts ...memory.Option) *Env {
	t.Helper()
	env := &Env{
		Ctx:     context.Background(),
		Clock:   clock.NewManual(Start),
		Store:   memory.New(opts...),
		Events:  events.NewRecorder(),
		Metrics: metrics.New(prometheus.NewRegistry()),
	}
	env.Locker = lock.NewMemory(env.Clock)
	env.Runner = workflow.NewRunner(env.Store,
		workflow.WithLocker(env.Locker),
		workflow.WithPublisher(env.Events),
		workflow.WithMetrics(env.Metrics),
		workflow.WithRetryPolicy(retry.Policy{
			MaxAttempts:     8,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		}),
	)

	company := &domain.Company{
		ID:     id.NewCompanyID(),
		Name:   "Northwind Vetting",
		Active: true,
	}
	all := append([]domain.TaskType(nil), domain.TaskTypeOrder...)
	officers := map[string]*domain.Officer{
		Junior: {AccessLevel: 1, Clearance: domain.ClearanceSecret, Active: true,
			Specializations: []domain.TaskType{domain.TaskIdentity, domain.TaskBackground, domain.TaskReference, domain.TaskInterview}},
		Analyst: {AccessLevel: 2, Clearance: domain.ClearanceConfidential, Active: true,
			Specializations: []domain.TaskType{domain.TaskIdentity, domain.TaskFinancial, domain.TaskCredential,
				domain.TaskReference, domain.TaskSkillsAssessment}},
		Senior: {AccessLevel: 3, Clearance: domain.ClearanceTopSecret, Active: true,
			Specializations: all[:len(all)-1]},
		Chief: {AccessLevel: 5, Clearance: domain.ClearanceTopSecret, Active: true,
			Specializations: all},
		Inactive: {AccessLevel: 2, Clearance: domain.ClearanceTopSecret, Active: false,
			Specializations: all},
	}
	seed := &directory.Seed{Companies: []domain.Company{*company}}
	for name, o := range officers {
		o.ID = id.NewOfficerID()
		o.CompanyID = company.ID
		o.Name = name
		o.Email = name + "@northwind.example"
		seed.Officers = append(seed.Officers, *o)
	}
	env.Directory = directory.NewService(directory.NewMemoryStore())
	require.NoError(t, env.Directory.Seed(env.Ctx, seed))
	env.Company = company
	env.Officers = officers
	return env
}

// Officer returns a seeded officer by name.
func (e *Env) Officer(name string) *domain.Officer {
	return e.Officers[name]
}

// OfficerID returns a seeded officer's ID.
func (e *Env) OfficerID(name string) id.OfficerID {
	return e.Officers[name].ID
}

// Actor returns the actor for a seeded officer.
func (e *Env) Actor(name string) domain.Actor {
	return domain.OfficerActor(e.Officers[name].ID)
}

// NewApplication builds an unsaved application routed to the fixture company.
func (e *Env) NewApplication(t testing.TB, tier domain.VettingTier, category domain.SubjectCategory) *domain.Application {
	t.Helper()
	now := e.Clock.Now()
	companyID := e.Company.ID
	app, err := domain.NewApplication(id.NewApplicationID(), "subject@example.com", category, "standard",
		tier, domain.PriorityStandard, &companyID, []byte(`{"full_name":"Sam Subject"}`), now.Add(7*24*time.Hour), now)
	require.NoError(t, err)
	return app
}

// Persist stores an application and its tasks with creation audit entries.
func (e *Env) Persist(t testing.TB, app *domain.Application, tasks ...*domain.Task) {
	t.Helper()
	err := e.Runner.Run(e.Ctx, "fixture.persist", nil, func(ctx context.Context, tx *workflow.Tx) error {
		if err := tx.Applications().Create(ctx, app); err != nil {
			return err
		}
		if err := tx.Record(ctx, creation(audit.EntityApplication, app.ID.String(), audit.ActionApplicationSubmitted, app, app.CreatedAt)); err != nil {
			return err
		}
		for _, task := range tasks {
			if err := tx.Tasks().Create(ctx, task); err != nil {
				return err
			}
			if err := tx.Record(ctx, creation(audit.EntityTask, task.ID.String(), audit.ActionTaskCreated, task, task.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// VerifyDocuments stores a verified document for every requirement of task.
func (e *Env) VerifyDocuments(t testing.TB, task *domain.Task) []*domain.Document {
	t.Helper()
	return e.addDocuments(t, task, domain.DocumentVerified, nil)
}

// PendingDocuments stores a pending document for every requirement of task.
func (e *Env) PendingDocuments(t testing.TB, task *domain.Task) []*domain.Document {
	t.Helper()
	return e.addDocuments(t, task, domain.DocumentPending, nil)
}

// ExpiringDocuments stores a verified document for every requirement of task
// that expires at expiresAt.
func (e *Env) ExpiringDocuments(t testing.TB, task *domain.Task, expiresAt time.Time) []*domain.Document {
	t.Helper()
	return e.addDocuments(t, task, domain.DocumentVerified, &expiresAt)
}

func (e *Env) addDocuments(t testing.TB, task *domain.Task, status domain.DocumentStatus, expiresAt *time.Time) []*domain.Document {
	now := e.Clock.Now()
	verifier := e.OfficerID(Senior)
	var docs []*domain.Document
	err := e.Runner.Run(e.Ctx, "fixture.documents", nil, func(ctx context.Context, tx *workflow.Tx) error {
		docs = docs[:0]
		for _, docType := range task.RequiredDocuments {
			taskID := task.ID
			d := &domain.Document{
				ID:            id.NewDocumentID(),
				ApplicationID: task.ApplicationID,
				TaskID:        &taskID,
				Type:          docType,
				Filename:      string(docType) + ".pdf",
				SizeBytes:     1024,
				ContentHash:   "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
				UploaderRole:  domain.UploaderApplicant,
				UploadedBy:    "subject@example.com",
				Status:        status,
				ExpiresAt:     expiresAt,
				UploadedAt:    now,
				UpdatedAt:     now,
				Version:       1,
			}
			if status == domain.DocumentVerified {
				d.VerifiedBy = &verifier
				d.VerifiedAt = &now
			}
			if err := tx.Documents().Create(ctx, d); err != nil {
				return err
			}
			if err := tx.Record(ctx, creation(audit.EntityDocument, d.ID.String(), audit.ActionDocumentUploaded, d, now)); err != nil {
				return err
			}
			docs = append(docs, d)
		}
		return nil
	})
	require.NoError(t, err)
	return docs
}

// Entries returns the audit history of an entity.
func (e *Env) Entries(t testing.TB, entityID string) []audit.Entry {
	t.Helper()
	entries, err := e.Store.Audit().ListByEntity(e.Ctx, entityID)
	require.NoError(t, err)
	return entries
}

// Actions returns the action names of an entity's history in order.
func (e *Env) Actions(t testing.TB, entityID string) []string {
	t.Helper()
	var out []string
	for _, entry := range e.Entries(t, entityID) {
		out = append(out, entry.Action)
	}
	return out
}

// Task reloads a task from the store.
func (e *Env) Task(t testing.TB, taskID id.TaskID) *domain.Task {
	t.Helper()
	task, err := e.Store.Tasks().Get(e.Ctx, taskID)
	require.NoError(t, err)
	return task
}

// Application reloads an application from the store.
func (e *Env) Application(t testing.TB, appID id.ApplicationID) *domain.Application {
	t.Helper()
	app, err := e.Store.Applications().Get(e.Ctx, appID)
	require.NoError(t, err)
	return app
}

// Stores exposes the committed store set.
func (e *Env) Stores() storage.Stores {
	return e.Store
}

func creation(entityType audit.EntityType, entityID, action string, after any, at time.Time) audit.Change {
	return audit.Change{
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      domain.SystemActor(),
		Action:     action,
		After:      after,
		At:         at,
	}
}
