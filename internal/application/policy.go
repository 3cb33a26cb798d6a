package application

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vetting/internal/domain"
	dErrors "vetting/pkg/domain-errors"
)

// TierPolicy controls how task outcomes decide an application of one tier.
type TierPolicy struct {
	// RejectOnFirstFailure rejects on the first failed mandatory task even
	// while other tasks are still open.
	RejectOnFirstFailure bool
	// AllowConditional lets conditional results count towards approval.
	AllowConditional bool
	// SLA sets the estimated completion time from submission.
	SLA time.Duration
}

// Policy holds the decision policy for every tier.
type Policy struct {
	Tiers map[domain.VettingTier]TierPolicy
}

func DefaultPolicy() Policy {
	return Policy{Tiers: map[domain.VettingTier]TierPolicy{
		domain.TierBasic:         {RejectOnFirstFailure: false, AllowConditional: true, SLA: 3 * 24 * time.Hour},
		domain.TierEnhanced:      {RejectOnFirstFailure: false, AllowConditional: true, SLA: 7 * 24 * time.Hour},
		domain.TierComprehensive: {RejectOnFirstFailure: true, AllowConditional: false, SLA: 14 * 24 * time.Hour},
		domain.TierExecutive:     {RejectOnFirstFailure: true, AllowConditional: false, SLA: 21 * 24 * time.Hour},
	}}
}

// For returns the tier's policy, falling back to the default.
func (p Policy) For(tier domain.VettingTier) TierPolicy {
	if tp, ok := p.Tiers[tier]; ok {
		return tp
	}
	return DefaultPolicy().Tiers[tier]
}

type tierOverride struct {
	RejectOnFirstFailure *bool         `yaml:"reject_on_first_failure"`
	AllowConditional     *bool         `yaml:"allow_conditional"`
	SLA                  time.Duration `yaml:"sla"`
}

type policyFile struct {
	Tiers map[domain.VettingTier]tierOverride `yaml:"tiers"`
}

// ParsePolicy overlays a YAML policy document on the defaults:
//
//	tiers:
//	  enhanced:
//	    reject_on_first_failure: true
//	    sla: 120h
func ParsePolicy(data []byte) (Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid policy yaml")
	}
	policy := DefaultPolicy()
	for tier, o := range file.Tiers {
		if !tier.IsValid() {
			return Policy{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown vetting tier %q", tier))
		}
		tp := policy.Tiers[tier]
		if o.RejectOnFirstFailure != nil {
			tp.RejectOnFirstFailure = *o.RejectOnFirstFailure
		}
		if o.AllowConditional != nil {
			tp.AllowConditional = *o.AllowConditional
		}
		if o.SLA < 0 {
			return Policy{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("tier %s: sla must be positive", tier))
		}
		if o.SLA > 0 {
			tp.SLA = o.SLA
		}
		policy.Tiers[tier] = tp
	}
	return policy, nil
}

// LoadPolicy reads a policy file. An empty path yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}
