package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"omnichat/internal/entities"
)

type EndUserRepository struct {
	db *pgxpool.Pool
}

func NewEndUserRepository(db *pgxpool.Pool) *EndUserRepository {
	return &EndUserRepository{db: db}
}

const endUserColumns = `id, business_id, external_id, channel, COALESCE(name, ''), COALESCE(phone_number, ''), metadata`

func scanEndUser(row pgx.Row) (*entities.EndUser, error) {
	var u entities.EndUser
	err := row.Scan(&u.ID, &u.BusinessID, &u.ExternalID, &u.Channel, &u.Name, &u.PhoneNumber, &u.Metadata)
	if err != nil {
		return nil, err
	}
	u.Metadata = entities.NormalizeMetadata(u.Metadata)
	return &u, nil
}

// GetByExternalID looks up a user by the exact (external_id, channel,
// business_id) key. Not found is nil, nil.
func (r *EndUserRepository) GetByExternalID(ctx context.Context, externalID, channel string, businessID uuid.UUID) (*entities.EndUser, error) {
	user, err := scanEndUser(r.db.QueryRow(ctx,
		`SELECT `+endUserColumns+` FROM chat_end_users
		 WHERE external_id = $1 AND channel = $2 AND business_id = $3`,
		externalID, channel, businessID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get end user by external id: %w", err)
	}
	return user, nil
}

// Create inserts the user unless the (business_id, channel, external_id) key
// already exists, in which case the existing row is returned. Two
// near-simultaneous first contacts converge on one identity.
func (r *EndUserRepository) Create(ctx context.Context, user *entities.EndUser) (*entities.EndUser, error) {
	created, err := scanEndUser(r.db.QueryRow(ctx,
		`INSERT INTO chat_end_users (id, business_id, external_id, channel, name, phone_number, metadata)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		 ON CONFLICT (business_id, channel, external_id) DO NOTHING
		 RETURNING `+endUserColumns,
		user.ID, user.BusinessID, user.ExternalID, user.Channel, user.Name, user.PhoneNumber,
		entities.NormalizeMetadata(user.Metadata)))
	if err == pgx.ErrNoRows {
		// Lost the race; fetch the winner.
		winner, err := r.GetByExternalID(ctx, user.ExternalID, user.Channel, user.BusinessID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, fmt.Errorf("create end user: conflict with no matching row")
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create end user: %w", err)
	}
	return created, nil
}
