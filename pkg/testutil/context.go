package testutil

import (
	"net/http"

	"vetting/internal/domain"
	id "vetting/pkg/domain"
	"vetting/pkg/requestcontext"
)

// AsOfficer attaches an officer principal the way the auth middleware would.
func AsOfficer(req *http.Request, officerID id.OfficerID) *http.Request {
	return withPrincipal(req, officerID.String(), domain.ActorOfficer)
}

// AsApplicant attaches an applicant principal identified by email.
func AsApplicant(req *http.Request, email string) *http.Request {
	return withPrincipal(req, email, domain.ActorApplicant)
}

func withPrincipal(req *http.Request, principalID string, principalType domain.ActorType) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.PrincipalInfo{
		ID:   principalID,
		Type: string(principalType),
	})
	return req.WithContext(ctx)
}
