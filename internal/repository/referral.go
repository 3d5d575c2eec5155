package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

// CreateReferral фиксирует переход по реферальной ссылке. Самоприглашение и
// повторное приглашение того же пользователя молча игнорируются: первая
// связка пригласивший/приглашённый остаётся в силе.
func (r *PostgresRepository) CreateReferral(ctx context.Context, referrerID, referredID int64) error {
	if referrerID == referredID {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO referrals (referrer_id, referred_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		referrerID, referredID, string(model.ReferralStatusPending),
	)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

// PendingReferral возвращает пригласившего, если у пользователя есть
// неизрасходованная реферальная скидка.
func (r *PostgresRepository) PendingReferral(ctx context.Context, referredID int64) (int64, error) {
	var referrerID int64
	err := r.pool.QueryRow(ctx,
		`SELECT referrer_id FROM referrals
		 WHERE referred_id = $1 AND status = $2`,
		referredID, string(model.ReferralStatusPending),
	).Scan(&referrerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select pending referral: %w", err)
	}
	return referrerID, nil
}

// ReferralStats описывает сводку по приглашениям пользователя.
type ReferralStats struct {
	Invited    int
	Completed  int
	TotalBonus float64
}

// GetReferralStats возвращает счётчики приглашений и накопленный бонус пригласившего.
func (r *PostgresRepository) GetReferralStats(ctx context.Context, referrerID int64) (ReferralStats, error) {
	var s ReferralStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $2),
		        COALESCE(SUM(bonus), 0)
		 FROM referrals WHERE referrer_id = $1`,
		referrerID, string(model.ReferralStatusCompleted),
	).Scan(&s.Invited, &s.Completed, &s.TotalBonus)
	if err != nil {
		return ReferralStats{}, fmt.Errorf("select referral stats: %w", err)
	}
	return s, nil
}

// ListReferrals возвращает приглашения пользователя, новые первыми.
func (r *PostgresRepository) ListReferrals(ctx context.Context, referrerID int64) ([]model.Referral, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT referrer_id, referred_id, status, COALESCE(order_id, 0), bonus, created_at
		 FROM referrals WHERE referrer_id = $1 ORDER BY created_at DESC`,
		referrerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select referrals: %w", err)
	}
	defer rows.Close()

	var refs []model.Referral
	for rows.Next() {
		var (
			ref    model.Referral
			status string
		)
		if err := rows.Scan(&ref.ReferrerID, &ref.ReferredID, &status, &ref.OrderID, &ref.Bonus, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		ref.Status = model.ReferralStatus(status)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return refs, nil
}
