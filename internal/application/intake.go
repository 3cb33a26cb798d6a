package application

import (
	"encoding/json"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/gowebpki/jcs"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	dErrors "vetting/pkg/domain-errors"
)

// maxPayloadBytes bounds the free-form intake payload.
const maxPayloadBytes = 64 << 10

var clientTiers = map[string]domain.VettingTier{
	"standard": domain.TierBasic,
	"premium":  domain.TierBasic,
	"vip":      domain.TierEnhanced,
	"platinum": domain.TierComprehensive,
}

var serviceTiers = map[string]domain.VettingTier{
	"security":           domain.TierExecutive,
	"childcare":          domain.TierExecutive,
	"healthcare":         domain.TierExecutive,
	"financial_advisory": domain.TierExecutive,
	"concierge":          domain.TierEnhanced,
	"transport":          domain.TierEnhanced,
	"hospitality":        domain.TierEnhanced,
	"maintenance":        domain.TierEnhanced,
}

var requiredFields = map[domain.SubjectCategory][]string{
	domain.CategoryClient:          {"full_name", "date_of_birth"},
	domain.CategoryServiceProvider: {"full_name", "business_name"},
	domain.CategoryRegionalPartner: {"organization_name", "region"},
	domain.CategoryPersonnel:       {"full_name", "position"},
}

// ClassifyTier maps a category and its sub-type (membership tier for clients,
// service category for providers) to the vetting tier.
func ClassifyTier(category domain.SubjectCategory, subType string) (domain.VettingTier, error) {
	sub := normalizeSubType(subType)
	switch category {
	case domain.CategoryClient:
		if tier, ok := clientTiers[sub]; ok {
			return tier, nil
		}
		return "", dErrors.New(dErrors.CodeValidation, "unknown client membership tier: "+subType)
	case domain.CategoryServiceProvider:
		if tier, ok := serviceTiers[sub]; ok {
			return tier, nil
		}
		return "", dErrors.New(dErrors.CodeValidation, "unknown service category: "+subType)
	case domain.CategoryRegionalPartner:
		return domain.TierEnhanced, nil
	case domain.CategoryPersonnel:
		return domain.TierComprehensive, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid subject category")
}

// PriorityFor returns the intake priority. Personnel and executive-tier
// subjects are always high.
func PriorityFor(category domain.SubjectCategory, tier domain.VettingTier) domain.Priority {
	if category == domain.CategoryPersonnel || tier == domain.TierExecutive {
		return domain.PriorityHigh
	}
	return domain.PriorityStandard
}

func normalizeSubType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}

// SubmitRequest is an intake submission.
type SubmitRequest struct {
	ApplicantEmail string
	Category       domain.SubjectCategory
	SubType        string
	CompanyID      *id.CompanyID
	Payload        json.RawMessage
}

// Validate checks the request and returns the canonical payload.
func (r *SubmitRequest) Validate() (json.RawMessage, error) {
	r.ApplicantEmail = strings.TrimSpace(r.ApplicantEmail)
	if r.ApplicantEmail == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "applicant email is required")
	}
	if !govalidator.IsEmail(r.ApplicantEmail) {
		return nil, dErrors.New(dErrors.CodeValidation, "applicant email is invalid")
	}
	if !r.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid subject category")
	}
	if len(r.Payload) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	if len(r.Payload) > maxPayloadBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "payload is too large")
	}
	var fields map[string]any
	if err := json.Unmarshal(r.Payload, &fields); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "payload must be a JSON object")
	}
	var missing []string
	for _, name := range requiredFields[r.Category] {
		v, ok := fields[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if str, isString := v.(string); !isString || strings.TrimSpace(str) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "payload is missing required fields: "+strings.Join(missing, ", "))
	}
	canonical, err := jcs.Transform(r.Payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "payload cannot be canonicalized")
	}
	return canonical, nil
}
