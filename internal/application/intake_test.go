package application

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetting/internal/domain"
	dErrors "vetting/pkg/domain-errors"
)

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		category domain.SubjectCategory
		subType  string
		want     domain.VettingTier
		wantErr  bool
	}{
		{category: domain.CategoryClient, subType: "standard", want: domain.TierBasic},
		{category: domain.CategoryClient, subType: "Premium", want: domain.TierBasic},
		{category: domain.CategoryClient, subType: "vip", want: domain.TierEnhanced},
		{category: domain.CategoryClient, subType: "platinum", want: domain.TierComprehensive},
		{category: domain.CategoryClient, subType: "diamond", wantErr: true},
		{category: domain.CategoryServiceProvider, subType: "Financial Advisory", want: domain.TierExecutive},
		{category: domain.CategoryServiceProvider, subType: "childcare", want: domain.TierExecutive},
		{category: domain.CategoryServiceProvider, subType: "transport", want: domain.TierEnhanced},
		{category: domain.CategoryServiceProvider, subType: "catering", wantErr: true},
		{category: domain.CategoryRegionalPartner, subType: "anything", want: domain.TierEnhanced},
		{category: domain.CategoryPersonnel, subType: "", want: domain.TierComprehensive},
		{category: "vendor", subType: "standard", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.category)+"/"+tt.subType, func(t *testing.T) {
			got, err := ClassifyTier(tt.category, tt.subType)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, domain.PriorityHigh, PriorityFor(domain.CategoryPersonnel, domain.TierComprehensive))
	assert.Equal(t, domain.PriorityHigh, PriorityFor(domain.CategoryServiceProvider, domain.TierExecutive))
	assert.Equal(t, domain.PriorityStandard, PriorityFor(domain.CategoryClient, domain.TierComprehensive))
	assert.Equal(t, domain.PriorityStandard, PriorityFor(domain.CategoryRegionalPartner, domain.TierEnhanced))
}

func TestSubmitRequestValidate(t *testing.T) {
	valid := func() SubmitRequest {
		return SubmitRequest{
			ApplicantEmail: "  ada@example.com ",
			Category:       domain.CategoryClient,
			SubType:        "standard",
			Payload:        json.RawMessage(`{"date_of_birth":"1990-01-01", "full_name":"Ada Lovelace"}`),
		}
	}

	t.Run("canonicalizes payload", func(t *testing.T) {
		req := valid()
		payload, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, `{"date_of_birth":"1990-01-01","full_name":"Ada Lovelace"}`, string(payload))
		assert.Equal(t, "ada@example.com", req.ApplicantEmail)
	})

	tests := []struct {
		name   string
		mutate func(r *SubmitRequest)
		msg    string
	}{
		{name: "missing email", mutate: func(r *SubmitRequest) { r.ApplicantEmail = " " }, msg: "email is required"},
		{name: "bad email", mutate: func(r *SubmitRequest) { r.ApplicantEmail = "not-an-email" }, msg: "email is invalid"},
		{name: "bad category", mutate: func(r *SubmitRequest) { r.Category = "vendor" }, msg: "category"},
		{name: "empty payload", mutate: func(r *SubmitRequest) { r.Payload = nil }, msg: "payload is required"},
		{name: "array payload", mutate: func(r *SubmitRequest) { r.Payload = json.RawMessage(`[1,2]`) }, msg: "JSON object"},
		{
			name:   "missing field",
			mutate: func(r *SubmitRequest) { r.Payload = json.RawMessage(`{"full_name":"Ada"}`) },
			msg:    "date_of_birth",
		},
		{
			name:   "blank field",
			mutate: func(r *SubmitRequest) { r.Payload = json.RawMessage(`{"full_name":" ","date_of_birth":"1990-01-01"}`) },
			msg:    "full_name",
		},
		{
			name: "oversized payload",
			mutate: func(r *SubmitRequest) {
				r.Payload = json.RawMessage(`{"full_name":"` + strings.Repeat("a", maxPayloadBytes) + `"}`)
			},
			msg: "too large",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			_, err := req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
