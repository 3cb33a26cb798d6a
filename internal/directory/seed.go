package directory

import (
	"context"
	"fmt"
	"os"

	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"

	"vetting/internal/domain"
	dErrors "vetting/pkg/domain-errors"
)

// Seed is the YAML layout of a directory file:
//
//	companies:
//	  - id: 6f1c...
//	    name: Northwind Vetting
//	    categories: [client, personnel]
//	    active: true
//	officers:
//	  - id: 0b9e...
//	    company_id: 6f1c...
//	    name: Ada Park
//	    email: ada@northwind.example
//	    access_level: 2
//	    clearance: 3
//	    specializations: [identity, background]
//	    active: true
type Seed struct {
	Companies []domain.Company `yaml:"companies"`
	Officers  []domain.Officer `yaml:"officers"`
}

// ParseSeed decodes and validates a directory document.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid directory yaml")
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// LoadSeedFile reads a directory document from disk.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	return ParseSeed(data)
}

func (s *Seed) Validate() error {
	companies := make(map[string]bool, len(s.Companies))
	for _, c := range s.Companies {
		if c.ID.IsNil() || c.Name == "" {
			return dErrors.New(dErrors.CodeValidation, "company requires id and name")
		}
		for _, cat := range c.Categories {
			if !cat.IsValid() {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("company %s: unknown category %q", c.Name, cat))
			}
		}
		companies[c.ID.String()] = true
	}
	for _, o := range s.Officers {
		if o.ID.IsNil() || o.Name == "" {
			return dErrors.New(dErrors.CodeValidation, "officer requires id and name")
		}
		if !companies[o.CompanyID.String()] {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("officer %s: unknown company", o.Name))
		}
		if !govalidator.IsEmail(o.Email) {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("officer %s: invalid email", o.Name))
		}
		if o.AccessLevel < 1 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("officer %s: access level must be positive", o.Name))
		}
		if !o.Clearance.IsValid() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("officer %s: invalid clearance", o.Name))
		}
		for _, spec := range o.Specializations {
			if !spec.IsValid() {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("officer %s: unknown specialization %q", o.Name, spec))
			}
		}
	}
	return nil
}

// Apply upserts the seed, companies first.
func (s *Seed) Apply(ctx context.Context, store Store) error {
	for i := range s.Companies {
		if err := store.SaveCompany(ctx, &s.Companies[i]); err != nil {
			return fmt.Errorf("save company %s: %w", s.Companies[i].Name, err)
		}
	}
	for i := range s.Officers {
		if err := store.SaveOfficer(ctx, &s.Officers[i]); err != nil {
			return fmt.Errorf("save officer %s: %w", s.Officers[i].Name, err)
		}
	}
	return nil
}
