package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

// EnsureUser создаёт пользователя при первом обращении. Повторный вызов
// обновляет имя и не трогает остальные поля.
func (r *PostgresRepository) EnsureUser(ctx context.Context, id int64, username string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`,
		id, username,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, agreement_accepted, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.AgreementAccepted, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// AcceptAgreement фиксирует согласие пользователя с условиями сервиса.
func (r *PostgresRepository) AcceptAgreement(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE users SET agreement_accepted = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("accept agreement: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}
