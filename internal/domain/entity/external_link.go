package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExternalLink binds a federated provider subject to a local identity.
// Links are created once and never mutated.
type ExternalLink struct {
	provider   string
	subjectID  string
	identityID uuid.UUID
	createdAt  time.Time
}

// NewExternalLink normalises the provider name to lower case.
func NewExternalLink(provider, subjectID string, identityID uuid.UUID, createdAt time.Time) *ExternalLink {
	return &ExternalLink{
		provider:   strings.ToLower(provider),
		subjectID:  subjectID,
		identityID: identityID,
		createdAt:  createdAt.UTC(),
	}
}

func (l *ExternalLink) Provider() string      { return l.provider }
func (l *ExternalLink) SubjectID() string     { return l.subjectID }
func (l *ExternalLink) IdentityID() uuid.UUID { return l.identityID }
func (l *ExternalLink) CreatedAt() time.Time  { return l.createdAt }
