package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pipeline-validation/internal/checks"
)

func (r *Repository) CreateConnection(ctx context.Context, c checks.Connection) (checks.Connection, error) {
	cipherText, err := r.Encryptor.Encrypt(c.Password)
	if err != nil {
		return checks.Connection{}, fmt.Errorf("encrypt password: %w", err)
	}
	c.CreatedAt = time.Now().UTC()
	_, err = r.Store.Pool.Exec(ctx, `
		INSERT INTO connections (connection_id, name, db_type, host, port, database_name, username, password_enc, ssl_mode, environment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Name, c.Engine, c.Host, c.Port, c.Database, c.Username, cipherText, c.SSLMode, c.Environment, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return checks.Connection{}, fmt.Errorf("connection %s %w", c.ID, ErrConflict)
	}
	if err != nil {
		return checks.Connection{}, err
	}
	return c, nil
}

// GetConnection returns the connection with its password decrypted.
func (r *Repository) GetConnection(ctx context.Context, id string) (checks.Connection, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT connection_id, name, db_type, host, port, database_name, username, password_enc, ssl_mode, environment, created_at
		FROM connections WHERE connection_id=$1`, id)
	var (
		c          checks.Connection
		cipherText string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Engine, &c.Host, &c.Port, &c.Database, &c.Username, &cipherText, &c.SSLMode, &c.Environment, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return checks.Connection{}, fmt.Errorf("connection %s %w", id, ErrNotFound)
		}
		return checks.Connection{}, err
	}
	plain, err := r.Encryptor.Decrypt(cipherText)
	if err != nil {
		return checks.Connection{}, fmt.Errorf("decrypt password of %s: %w", id, err)
	}
	c.Password = plain
	return c, nil
}
