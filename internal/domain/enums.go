package domain

import id "vetting/pkg/domain"

// SubjectCategory classifies who is being vetted.
type SubjectCategory string

const (
	CategoryClient          SubjectCategory = "client"
	CategoryServiceProvider SubjectCategory = "service_provider"
	CategoryRegionalPartner SubjectCategory = "regional_partner"
	CategoryPersonnel       SubjectCategory = "personnel"
)

func (c SubjectCategory) IsValid() bool {
	switch c {
	case CategoryClient, CategoryServiceProvider, CategoryRegionalPartner, CategoryPersonnel:
		return true
	}
	return false
}

// VettingTier is the depth of verification; it drives task generation.
type VettingTier string

const (
	TierBasic         VettingTier = "basic"
	TierEnhanced      VettingTier = "enhanced"
	TierComprehensive VettingTier = "comprehensive"
	TierExecutive     VettingTier = "executive"
)

var tierRank = map[VettingTier]int{
	TierBasic:         1,
	TierEnhanced:      2,
	TierComprehensive: 3,
	TierExecutive:     4,
}

func (t VettingTier) IsValid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank orders tiers from basic (1) to executive (4).
func (t VettingTier) Rank() int { return tierRank[t] }

// RequiredClearance is the minimum officer clearance for tasks of this tier.
func (t VettingTier) RequiredClearance() ClearanceLevel {
	return ClearanceLevel(t.Rank())
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityStandard Priority = "standard"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityStandard, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ClearanceLevel is an ordered officer clearance.
type ClearanceLevel int

const (
	ClearanceStandard     ClearanceLevel = 1
	ClearanceConfidential ClearanceLevel = 2
	ClearanceSecret       ClearanceLevel = 3
	ClearanceTopSecret    ClearanceLevel = 4
)

func (c ClearanceLevel) IsValid() bool {
	return c >= ClearanceStandard && c <= ClearanceTopSecret
}

func (c ClearanceLevel) String() string {
	switch c {
	case ClearanceStandard:
		return "standard"
	case ClearanceConfidential:
		return "confidential"
	case ClearanceSecret:
		return "secret"
	case ClearanceTopSecret:
		return "top_secret"
	}
	return "unknown"
}

// DocumentType names a kind of evidence.
type DocumentType string

const (
	DocGovernmentID         DocumentType = "government_id"
	DocProofOfAddress       DocumentType = "proof_of_address"
	DocBackgroundConsent    DocumentType = "background_check_consent"
	DocBankStatement        DocumentType = "bank_statement"
	DocProfessionalLicense  DocumentType = "professional_license"
	DocReferenceLetter      DocumentType = "reference_letter"
	DocBusinessRegistration DocumentType = "business_registration"
	DocOther                DocumentType = "other"
)

func (d DocumentType) IsValid() bool {
	switch d {
	case DocGovernmentID, DocProofOfAddress, DocBackgroundConsent, DocBankStatement,
		DocProfessionalLicense, DocReferenceLetter, DocBusinessRegistration, DocOther:
		return true
	}
	return false
}

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorOfficer   ActorType = "officer"
	ActorApplicant ActorType = "applicant"
	ActorSystem    ActorType = "system"
)

func (t ActorType) IsValid() bool {
	switch t {
	case ActorOfficer, ActorApplicant, ActorSystem:
		return true
	}
	return false
}

// Actor is the authenticated principal behind a call. Officers are resolved
// against the directory by ID; the system actor is used for scheduled work.
type Actor struct {
	ID   string    `json:"id"`
	Type ActorType `json:"type"`
}

func OfficerActor(officerID id.OfficerID) Actor {
	return Actor{ID: officerID.String(), Type: ActorOfficer}
}

func ApplicantActor(email string) Actor {
	return Actor{ID: email, Type: ActorApplicant}
}

func SystemActor() Actor {
	return Actor{ID: "system", Type: ActorSystem}
}

// OfficerID parses the actor ID when the actor is an officer.
func (a Actor) OfficerID() (id.OfficerID, bool) {
	if a.Type != ActorOfficer {
		return id.OfficerID{}, false
	}
	officerID, err := id.ParseOfficerID(a.ID)
	if err != nil {
		return id.OfficerID{}, false
	}
	return officerID, true
}
