package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const pgUniqueViolation = "23505"

type pgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository stores registered persons in the relational database.
type PostgresRepository struct {
	pool    pgxPool
	ttlDays int
	tracer  trace.Tracer
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool pgxPool, ttlDays int) *PostgresRepository {
	if pool == nil {
		panic("registry: pgx pool required")
	}
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	return &PostgresRepository{
		pool:    pool,
		ttlDays: ttlDays,
		tracer:  otel.Tracer("nexofarma/registry"),
	}
}

const selectColumns = `
	id, phone_number, pharmacy_id, dni, name, plex_customer_id,
	is_self, is_active, last_used_at, expires_at, created_at, updated_at
`

// GetValidByPhone returns active, unexpired registrations for the phone,
// self first, then most recently used.
func (r *PostgresRepository) GetValidByPhone(ctx context.Context, phone, pharmacyID string) ([]RegisteredPerson, error) {
	ctx, span := r.tracer.Start(ctx, "registry.get_valid_by_phone")
	defer span.End()
	span.SetAttributes(attribute.String("nexofarma.pharmacy_id", pharmacyID))

	query := `
		SELECT ` + selectColumns + `
		FROM registered_persons
		WHERE phone_number = $1 AND pharmacy_id = $2
		  AND is_active = TRUE AND expires_at > NOW()
		ORDER BY is_self DESC, last_used_at DESC
	`
	rows, err := r.pool.Query(ctx, query, phone, pharmacyID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("registry: select failed: %w", err)
	}
	defer rows.Close()

	var persons []RegisteredPerson
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("registry: scan failed: %w", err)
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("registry: rows failed: %w", err)
	}
	return persons, nil
}

// Upsert inserts a registration or renews the existing one. A lost insert
// race (unique-constraint violation) is resolved by re-fetching the winner's
// row and renewing it.
func (r *PostgresRepository) Upsert(ctx context.Context, req *UpsertRequest) (*RegisteredPerson, error) {
	ctx, span := r.tracer.Start(ctx, "registry.upsert")
	defer span.End()
	span.SetAttributes(attribute.String("nexofarma.pharmacy_id", req.PharmacyID))

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if existing, err := r.findByKey(ctx, req); err == nil {
		return r.renew(ctx, existing.ID, req)
	} else if !errors.Is(err, ErrPersonNotFound) {
		span.RecordError(err)
		return nil, err
	}

	id := uuid.New().String()
	query := `
		INSERT INTO registered_persons (
			id, phone_number, pharmacy_id, dni, name, plex_customer_id,
			is_self, is_active, last_used_at, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), NOW() + make_interval(days => $8), NOW(), NOW())
		RETURNING ` + selectColumns

	row := r.pool.QueryRow(ctx, query,
		id,
		req.PhoneNumber,
		req.PharmacyID,
		req.DNI,
		req.Name,
		req.PlexCustomerID,
		req.IsSelf,
		r.ttlDays,
	)
	person, err := scanPerson(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// Another worker inserted the same key first; renew theirs.
			existing, findErr := r.findByKey(ctx, req)
			if findErr != nil {
				return nil, fmt.Errorf("registry: upsert race re-fetch: %w", findErr)
			}
			return r.renew(ctx, existing.ID, req)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("registry: insert failed: %w", err)
	}
	return &person, nil
}

// MarkUsed refreshes the expiration window for the registration.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "registry.mark_used")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
		UPDATE registered_persons
		SET last_used_at = NOW(), expires_at = NOW() + make_interval(days => $2), updated_at = NOW()
		WHERE id = $1
	`, id, r.ttlDays)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("registry: mark used failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPersonNotFound
	}
	return nil
}

// DeactivateExpired soft-deletes expired registrations for the pharmacy.
// Housekeeping path, not called during turn processing.
func (r *PostgresRepository) DeactivateExpired(ctx context.Context, pharmacyID string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "registry.deactivate_expired")
	defer span.End()
	span.SetAttributes(attribute.String("nexofarma.pharmacy_id", pharmacyID))

	tag, err := r.pool.Exec(ctx, `
		UPDATE registered_persons
		SET is_active = FALSE, updated_at = NOW()
		WHERE ($1 = '' OR pharmacy_id = $1) AND is_active = TRUE AND expires_at <= NOW()
	`, pharmacyID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("registry: deactivate expired failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) findByKey(ctx context.Context, req *UpsertRequest) (*RegisteredPerson, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM registered_persons
		WHERE phone_number = $1 AND dni = $2 AND pharmacy_id = $3
	`, req.PhoneNumber, req.DNI, req.PharmacyID)
	person, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPersonNotFound
		}
		return nil, fmt.Errorf("registry: select by key failed: %w", err)
	}
	return &person, nil
}

// renew reactivates and refreshes an existing row with the latest name and
// external id.
func (r *PostgresRepository) renew(ctx context.Context, id string, req *UpsertRequest) (*RegisteredPerson, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE registered_persons
		SET name = $2, plex_customer_id = $3, is_self = $4, is_active = TRUE,
		    last_used_at = NOW(), expires_at = NOW() + make_interval(days => $5), updated_at = NOW()
		WHERE id = $1
		RETURNING `+selectColumns,
		id, req.Name, req.PlexCustomerID, req.IsSelf, r.ttlDays,
	)
	person, err := scanPerson(row)
	if err != nil {
		return nil, fmt.Errorf("registry: renew failed: %w", err)
	}
	return &person, nil
}

func scanPerson(row pgx.Row) (RegisteredPerson, error) {
	var p RegisteredPerson
	err := row.Scan(
		&p.ID,
		&p.PhoneNumber,
		&p.PharmacyID,
		&p.DNI,
		&p.Name,
		&p.PlexCustomerID,
		&p.IsSelf,
		&p.IsActive,
		&p.LastUsedAt,
		&p.ExpiresAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}
