package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	// Auto-migrate schema
	if err := client.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate() error {
	ctx := context.Background()

	// End users, one row per human per channel per business. The unique
	// key backs the insert-or-fetch in the repository.
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_end_users (
			id UUID PRIMARY KEY,
			business_id UUID NOT NULL,
			external_id VARCHAR(255) NOT NULL,
			channel VARCHAR(20) NOT NULL,
			name VARCHAR(100),
			phone_number VARCHAR(20),
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (business_id, channel, external_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("create chat_end_users table: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_conversations (
			id UUID PRIMARY KEY,
			end_user_id UUID NOT NULL REFERENCES chat_end_users(id),
			business_id UUID NOT NULL,
			channel VARCHAR(20) NOT NULL,
			started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at TIMESTAMP,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create chat_conversations table: %w", err)
	}

	// At most one open conversation per user per business.
	_, err = p.Pool.Exec(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS chat_conversations_one_active
		ON chat_conversations (end_user_id, business_id)
		WHERE is_active;
	`)
	if err != nil {
		return fmt.Errorf("create active conversation index: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES chat_conversations(id),
			sender_type VARCHAR(10) NOT NULL,
			content VARCHAR(4000) NOT NULL,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			metadata JSONB
		);
	`)
	if err != nil {
		return fmt.Errorf("create chat_messages table: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS chat_messages_by_conversation
		ON chat_messages (conversation_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}

	// Management API accounts
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS operators (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) DEFAULT 'operator',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create operators table: %w", err)
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
