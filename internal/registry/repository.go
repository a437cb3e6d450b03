package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for registered-person storage
type Repository interface {
	// GetValidByPhone returns active, unexpired registrations for the
	// phone at the pharmacy, self first, then most recently used.
	GetValidByPhone(ctx context.Context, phone, pharmacyID string) ([]RegisteredPerson, error)
	// Upsert inserts a registration or renews the existing one for the
	// same (phone, dni, pharmacy).
	Upsert(ctx context.Context, req *UpsertRequest) (*RegisteredPerson, error)
	// MarkUsed pushes the expiration window forward from now.
	MarkUsed(ctx context.Context, id string) error
	// DeactivateExpired soft-deletes every expired registration of the
	// pharmacy and reports how many rows changed. An empty pharmacyID
	// sweeps all pharmacies.
	DeactivateExpired(ctx context.Context, pharmacyID string) (int64, error)
}

// InMemoryRepository is a Repository backed by a map, used in development and
// tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	persons map[string]*RegisteredPerson
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository(ttlDays int) *InMemoryRepository {
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	return &InMemoryRepository{
		persons: make(map[string]*RegisteredPerson),
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
		now:     time.Now,
	}
}

// GetValidByPhone returns valid registrations ordered self-first, then by
// recency of use.
func (r *InMemoryRepository) GetValidByPhone(ctx context.Context, phone, pharmacyID string) ([]RegisteredPerson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var out []RegisteredPerson
	for _, p := range r.persons {
		if p.PhoneNumber == phone && p.PharmacyID == pharmacyID && p.IsActive && !p.Expired(now) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsSelf != out[j].IsSelf {
			return out[i].IsSelf
		}
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out, nil
}

// Upsert creates or renews a registration.
func (r *InMemoryRepository) Upsert(ctx context.Context, req *UpsertRequest) (*RegisteredPerson, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, p := range r.persons {
		if p.PhoneNumber == req.PhoneNumber && p.DNI == req.DNI && p.PharmacyID == req.PharmacyID {
			p.Name = req.Name
			p.PlexCustomerID = req.PlexCustomerID
			p.IsSelf = req.IsSelf
			p.IsActive = true
			p.LastUsedAt = now
			p.ExpiresAt = now.Add(r.ttl)
			p.UpdatedAt = now
			out := *p
			return &out, nil
		}
	}

	person := &RegisteredPerson{
		ID:             uuid.New().String(),
		PhoneNumber:    req.PhoneNumber,
		PharmacyID:     req.PharmacyID,
		DNI:            req.DNI,
		Name:           req.Name,
		PlexCustomerID: req.PlexCustomerID,
		IsSelf:         req.IsSelf,
		IsActive:       true,
		LastUsedAt:     now,
		ExpiresAt:      now.Add(r.ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.persons[person.ID] = person
	out := *person
	return &out, nil
}

// MarkUsed refreshes the expiration window for the registration.
func (r *InMemoryRepository) MarkUsed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.persons[id]
	if !ok {
		return ErrPersonNotFound
	}
	now := r.now()
	p.LastUsedAt = now
	p.ExpiresAt = now.Add(r.ttl)
	p.UpdatedAt = now
	return nil
}

// DeactivateExpired soft-deletes expired registrations for the pharmacy.
func (r *InMemoryRepository) DeactivateExpired(ctx context.Context, pharmacyID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var count int64
	for _, p := range r.persons {
		if (pharmacyID == "" || p.PharmacyID == pharmacyID) && p.IsActive && p.Expired(now) {
			p.IsActive = false
			p.UpdatedAt = now
			count++
		}
	}
	return count, nil
}
