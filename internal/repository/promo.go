package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

// CreatePromo добавляет промокод.
func (r *PostgresRepository) CreatePromo(ctx context.Context, p model.PromoCode) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO promo_codes (code, kind, value, uses_left, active, description)
		 VALUES ($1, $2, $3, $4, TRUE, $5)`,
		p.Code, string(p.Kind), p.Value, p.UsesLeft, p.Description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewValidationError("promo code %s already exists", p.Code)
		}
		return fmt.Errorf("insert promo: %w", err)
	}
	return nil
}

// DeactivatePromo отключает промокод. Повторное отключение не является ошибкой.
func (r *PostgresRepository) DeactivatePromo(ctx context.Context, code string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE promo_codes SET active = FALSE WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("deactivate promo: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrPromoNotFound
	}
	return nil
}

// GetPromo возвращает промокод по коду.
func (r *PostgresRepository) GetPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	var (
		p    model.PromoCode
		kind string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT code, kind, value, uses_left, active, description, created_at
		 FROM promo_codes WHERE code = $1`, code,
	).Scan(&p.Code, &kind, &p.Value, &p.UsesLeft, &p.Active, &p.Description, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrPromoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select promo: %w", err)
	}
	p.Kind = model.DiscountKind(kind)
	return &p, nil
}

// ListPromos возвращает все промокоды, новые первыми.
func (r *PostgresRepository) ListPromos(ctx context.Context) ([]model.PromoCode, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT code, kind, value, uses_left, active, description, created_at
		 FROM promo_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select promos: %w", err)
	}
	defer rows.Close()

	var promos []model.PromoCode
	for rows.Next() {
		var (
			p    model.PromoCode
			kind string
		)
		if err := rows.Scan(&p.Code, &kind, &p.Value, &p.UsesLeft, &p.Active, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan promo: %w", err)
		}
		p.Kind = model.DiscountKind(kind)
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return promos, nil
}

// CheckPromo проверяет применимость промокода к пользователю без списания.
// Используется на шаге анкеты для вычисления котировки.
func (r *PostgresRepository) CheckPromo(ctx context.Context, code string, userID int64) (*model.PromoCode, error) {
	p, err := r.GetPromo(ctx, code)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, model.ErrPromoInactive
	}
	if p.UsesLeft == 0 {
		return nil, model.ErrPromoExhausted
	}

	var used bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM promo_usages WHERE code = $1 AND user_id = $2)`,
		code, userID,
	).Scan(&used)
	if err != nil {
		return nil, fmt.Errorf("check promo usage: %w", err)
	}
	if used {
		return nil, model.ErrPromoAlreadyUsed
	}
	return p, nil
}

// validatePromoForUpdate перечитывает промокод под блокировкой строки внутри
// транзакции создания заказа. Котировка могла устареть между анкетой и оплатой;
// повторное применение тем же пользователем ловится уникальным индексом в consumePromo.
func validatePromoForUpdate(ctx context.Context, tx pgx.Tx, code string) error {
	var (
		usesLeft int
		active   bool
	)
	err := tx.QueryRow(ctx,
		`SELECT uses_left, active FROM promo_codes WHERE code = $1 FOR UPDATE`, code,
	).Scan(&usesLeft, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrPromoNotFound
	}
	if err != nil {
		return fmt.Errorf("lock promo: %w", err)
	}
	if !active {
		return model.ErrPromoInactive
	}
	if usesLeft == 0 {
		return model.ErrPromoExhausted
	}
	return nil
}

// consumePromo списывает одно применение промокода и фиксирует его в леджере.
// Строка промокода уже заблокирована validatePromoForUpdate.
func consumePromo(ctx context.Context, tx pgx.Tx, code string, userID, orderID int64, amount float64) error {
	_, err := tx.Exec(ctx,
		`UPDATE promo_codes SET uses_left = uses_left - 1
		 WHERE code = $1 AND uses_left > 0`, code)
	if err != nil {
		return fmt.Errorf("decrement promo uses: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO promo_usages (code, user_id, order_id, amount)
		 VALUES ($1, $2, $3, $4)`,
		code, userID, orderID, amount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrPromoAlreadyUsed
		}
		return fmt.Errorf("insert promo usage: %w", err)
	}
	return nil
}
