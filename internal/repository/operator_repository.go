package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"omnichat/internal/entities"
)

type OperatorRepository struct {
	db *pgxpool.Pool
}

func NewOperatorRepository(db *pgxpool.Pool) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) Create(ctx context.Context, op *entities.Operator) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO operators (username, password_hash, role) VALUES ($1, $2, $3)",
		op.Username, op.PasswordHash, op.Role)
	return err
}

func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (*entities.Operator, error) {
	var op entities.Operator
	err := r.db.QueryRow(ctx,
		"SELECT id, username, password_hash, role FROM operators WHERE username = $1",
		username).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.Role)

	if err == pgx.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}
