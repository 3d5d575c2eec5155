package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

// AddClarification сохраняет сообщение в ветке уточнений и обновляет счётчик
// уточнений заказа той же транзакцией.
func (r *PostgresRepository) AddClarification(ctx context.Context, c model.Clarification) (int64, error) {
	var doc []byte
	if c.Document != nil {
		var err error
		doc, err = json.Marshal(c.Document)
		if err != nil {
			return 0, fmt.Errorf("marshal document: %w", err)
		}
	}

	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO clarifications (order_id, author_id, text, document, is_from_user, is_admin_request, replied_to, sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8)
			 RETURNING id`,
			c.OrderID, c.AuthorID, c.Text, doc, c.IsFromUser, c.IsAdminRequest, c.RepliedTo, c.SentAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert clarification: %w", err)
		}

		if c.IsFromUser {
			_, err = tx.Exec(ctx,
				`UPDATE orders
				 SET clarification_count = clarification_count + 1,
				     last_clarification_at = $1, updated_at = now()
				 WHERE id = $2`,
				c.SentAt, c.OrderID,
			)
			if err != nil {
				return fmt.Errorf("bump clarification count: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetClarification возвращает сообщение по идентификатору.
func (r *PostgresRepository) GetClarification(ctx context.Context, id int64) (*model.Clarification, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, order_id, author_id, text, document, is_from_user, is_admin_request, COALESCE(replied_to, 0), sent_at
		 FROM clarifications WHERE id = $1`, id)
	c, err := scanClarification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrClarificationNotFound
	}
	return c, err
}

// ListClarifications возвращает ветку уточнений заказа в хронологическом порядке.
func (r *PostgresRepository) ListClarifications(ctx context.Context, orderID int64) ([]model.Clarification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, author_id, text, document, is_from_user, is_admin_request, COALESCE(replied_to, 0), sent_at
		 FROM clarifications WHERE order_id = $1 ORDER BY sent_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select clarifications: %w", err)
	}
	defer rows.Close()

	var out []model.Clarification
	for rows.Next() {
		c, err := scanClarification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func scanClarification(row rowScanner) (*model.Clarification, error) {
	var (
		c   model.Clarification
		doc []byte
	)
	err := row.Scan(&c.ID, &c.OrderID, &c.AuthorID, &c.Text, &doc,
		&c.IsFromUser, &c.IsAdminRequest, &c.RepliedTo, &c.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan clarification: %w", err)
	}
	if len(doc) > 0 {
		c.Document = &model.Document{}
		if err := json.Unmarshal(doc, c.Document); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
	}
	return &c, nil
}
