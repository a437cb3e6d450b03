package registry

import (
	"errors"
	"strings"
	"time"
)

// DefaultTTLDays is the validity window of a cached authorization. Renewal on
// reuse keeps frequently-used accounts alive while dormant ones expire.
const DefaultTTLDays = 180

// ErrPersonNotFound indicates no registered person matches the query.
var ErrPersonNotFound = errors.New("registry: person not found")

// RegisteredPerson is a locally cached authorization: this phone number has
// previously identified this person at this pharmacy. Soft-deactivated via
// IsActive, never hard-deleted.
type RegisteredPerson struct {
	ID             string
	PhoneNumber    string
	PharmacyID     string
	DNI            string
	Name           string
	PlexCustomerID string
	IsSelf         bool
	IsActive       bool
	LastUsedAt     time.Time
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Expired reports whether the authorization window has passed.
func (p RegisteredPerson) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// UpsertRequest creates or renews a registration. Uniqueness is one active
// record per (phone number, DNI, pharmacy).
type UpsertRequest struct {
	PhoneNumber    string
	PharmacyID     string
	DNI            string
	Name           string
	PlexCustomerID string
	IsSelf         bool
}

// Validate checks required fields.
func (r *UpsertRequest) Validate() error {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return errors.New("registry: phone number required")
	}
	if strings.TrimSpace(r.PharmacyID) == "" {
		return errors.New("registry: pharmacy id required")
	}
	if strings.TrimSpace(r.DNI) == "" {
		return errors.New("registry: dni required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("registry: name required")
	}
	return nil
}
