package domain_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"vetting/internal/domain"
)

type CommentSuite struct {
	suite.Suite
}

func TestCommentSuite(t *testing.T) {
	suite.Run(t, new(CommentSuite))
}

func (s *CommentSuite) TestVisibleTo() {
	cases := []struct {
		name    string
		comment domain.Comment
		actor   domain.ActorType
		level   int
		want    bool
	}{
		{"applicant sees public external", domain.Comment{}, domain.ActorApplicant, 0, true},
		{"applicant never sees internal", domain.Comment{Internal: true}, domain.ActorApplicant, 0, false},
		{"applicant does not see restricted external", domain.Comment{Visibility: 2}, domain.ActorApplicant, 0, false},
		{"officer sees up to own level", domain.Comment{Internal: true, Visibility: 2}, domain.ActorOfficer, 2, true},
		{"officer below level is refused", domain.Comment{Visibility: 3}, domain.ActorOfficer, 2, false},
		{"system sees everything", domain.Comment{Internal: true, Visibility: 5}, domain.ActorSystem, 0, true},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Equal(tc.want, tc.comment.VisibleTo(tc.actor, tc.level))
		})
	}
}
