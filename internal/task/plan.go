package task

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
)

// Step is one row of the decomposition table.
type Step struct {
	Type              domain.TaskType
	Description       string
	RequiredDocuments []domain.DocumentType
	Mandatory         bool
}

var catalog = map[domain.TaskType]Step{
	domain.TaskIdentity: {
		Type:              domain.TaskIdentity,
		Description:       "Confirm the subject's legal identity and current address",
		RequiredDocuments: []domain.DocumentType{domain.DocGovernmentID, domain.DocProofOfAddress},
	},
	domain.TaskBackground: {
		Type:              domain.TaskBackground,
		Description:       "Run criminal and civil background checks",
		RequiredDocuments: []domain.DocumentType{domain.DocBackgroundConsent},
	},
	domain.TaskFinancial: {
		Type:              domain.TaskFinancial,
		Description:       "Review financial standing and source of funds",
		RequiredDocuments: []domain.DocumentType{domain.DocBankStatement},
	},
	domain.TaskCredential: {
		Type:              domain.TaskCredential,
		Description:       "Verify professional licences and certifications",
		RequiredDocuments: []domain.DocumentType{domain.DocProfessionalLicense},
	},
	domain.TaskReference: {
		Type:              domain.TaskReference,
		Description:       "Contact and assess provided references",
		RequiredDocuments: []domain.DocumentType{domain.DocReferenceLetter},
	},
	domain.TaskInterview: {
		Type:        domain.TaskInterview,
		Description: "Conduct a structured interview with the subject",
	},
	domain.TaskSkillsAssessment: {
		Type:        domain.TaskSkillsAssessment,
		Description: "Assess practical skills for the offered service",
	},
}

var tierTasks = map[domain.VettingTier][]domain.TaskType{
	domain.TierBasic:         {domain.TaskIdentity, domain.TaskReference},
	domain.TierEnhanced:      {domain.TaskIdentity, domain.TaskBackground, domain.TaskReference},
	domain.TierComprehensive: {domain.TaskIdentity, domain.TaskBackground, domain.TaskReference, domain.TaskInterview},
	domain.TierExecutive:     {domain.TaskIdentity, domain.TaskBackground, domain.TaskFinancial, domain.TaskCredential, domain.TaskInterview},
}

type addition struct {
	taskType  domain.TaskType
	mandatory bool
}

var categoryTasks = map[domain.SubjectCategory][]addition{
	domain.CategoryServiceProvider: {
		{taskType: domain.TaskCredential, mandatory: true},
		{taskType: domain.TaskSkillsAssessment, mandatory: false},
	},
	domain.CategoryRegionalPartner: {
		{taskType: domain.TaskFinancial, mandatory: true},
	},
}

// Blueprint returns the task rows for a tier and category in canonical
// order. Unknown tiers yield nil.
func Blueprint(tier domain.VettingTier, category domain.SubjectCategory) []Step {
	base, ok := tierTasks[tier]
	if !ok {
		return nil
	}
	mandatory := make(map[domain.TaskType]bool, len(base)+2)
	for _, t := range base {
		mandatory[t] = true
	}
	for _, add := range categoryTasks[category] {
		mandatory[add.taskType] = mandatory[add.taskType] || add.mandatory
	}

	steps := make([]Step, 0, len(mandatory))
	for t, m := range mandatory {
		step := catalog[t]
		step.Mandatory = m
		step.RequiredDocuments = slices.Clone(step.RequiredDocuments)
		steps = append(steps, step)
	}
	slices.SortFunc(steps, func(a, b Step) int { return a.Type.Rank() - b.Type.Rank() })
	return steps
}

// Decompose builds the task set for a new application. The output depends
// only on its inputs: task IDs are derived from the application ID and task
// type, so the same call always produces the same tasks.
func Decompose(appID id.ApplicationID, tier domain.VettingTier, category domain.SubjectCategory,
	priority domain.Priority, dueAt, now time.Time) []*domain.Task {
	steps := Blueprint(tier, category)
	tasks := make([]*domain.Task, 0, len(steps))
	for _, step := range steps {
		tasks = append(tasks, &domain.Task{
			ID:                taskID(appID, step.Type),
			ApplicationID:     appID,
			Type:              step.Type,
			Description:       step.Description,
			RequiredDocuments: step.RequiredDocuments,
			Mandatory:         step.Mandatory,
			MinClearance:      tier.RequiredClearance(),
			Status:            domain.TaskPending,
			Priority:          priority,
			DueAt:             dueAt,
			CreatedAt:         now,
			UpdatedAt:         now,
			Version:           1,
		})
	}
	return tasks
}

func taskID(appID id.ApplicationID, t domain.TaskType) id.TaskID {
	return id.TaskID(uuid.NewSHA1(uuid.UUID(appID), []byte(t)))
}
