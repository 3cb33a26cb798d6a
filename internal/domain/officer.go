package domain

import (
	"slices"

	id "vetting/pkg/domain"
)

// Officer is a reviewer from the directory. Officers are reference data and
// are not mutated by workflow operations.
type Officer struct {
	ID              id.OfficerID   `json:"id" yaml:"id"`
	CompanyID       id.CompanyID   `json:"company_id" yaml:"company_id"`
	Name            string         `json:"name" yaml:"name"`
	Email           string         `json:"email" yaml:"email"`
	AccessLevel     int            `json:"access_level" yaml:"access_level"`
	Clearance       ClearanceLevel `json:"clearance" yaml:"clearance"`
	Specializations []TaskType     `json:"specializations" yaml:"specializations"`
	Active          bool           `json:"active" yaml:"active"`
}

func (o *Officer) HasSpecialization(t TaskType) bool {
	return slices.Contains(o.Specializations, t)
}

// Company groups officers; applications may be routed to one.
type Company struct {
	ID         id.CompanyID      `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Categories []SubjectCategory `json:"categories" yaml:"categories"`
	Active     bool              `json:"active" yaml:"active"`
}

// Serves reports whether the company handles the subject category. An
// empty category list serves all.
func (c *Company) Serves(category SubjectCategory) bool {
	return len(c.Categories) == 0 || slices.Contains(c.Categories, category)
}
