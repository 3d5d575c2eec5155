package repository

import (
	"context"
	"fmt"
)

// Stats — сводка по заказам и скидкам для операторской панели.
type Stats struct {
	OrdersByStatus map[string]int
	Revenue        int64
	PromoUses      int
	PromoTotal     float64
	ReferralsTotal int
	ReferralsUsed  int
	BonusTotal     float64
}

// GetStats собирает сводку по всем леджерам.
func (r *PostgresRepository) GetStats(ctx context.Context) (Stats, error) {
	s := Stats{OrdersByStatus: make(map[string]int)}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, fmt.Errorf("scan order count: %w", err)
		}
		s.OrdersByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("rows error: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(price), 0) FROM orders WHERE status = 'completed'`,
	).Scan(&s.Revenue)
	if err != nil {
		return Stats{}, fmt.Errorf("sum revenue: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM promo_usages`,
	).Scan(&s.PromoUses, &s.PromoTotal)
	if err != nil {
		return Stats{}, fmt.Errorf("sum promo usages: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COALESCE(SUM(bonus), 0)
		 FROM referrals`,
	).Scan(&s.ReferralsTotal, &s.ReferralsUsed, &s.BonusTotal)
	if err != nil {
		return Stats{}, fmt.Errorf("sum referrals: %w", err)
	}

	return s, nil
}

// TopReferrer — пригласивший с числом приглашённых.
type TopReferrer struct {
	ReferrerID int64
	Invited    int
}

// TopReferrers возвращает пригласивших с наибольшим числом приглашённых.
func (r *PostgresRepository) TopReferrers(ctx context.Context, limit int) ([]TopReferrer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT referrer_id, COUNT(*) AS invited
		 FROM referrals GROUP BY referrer_id
		 ORDER BY invited DESC, referrer_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select top referrers: %w", err)
	}
	defer rows.Close()

	var top []TopReferrer
	for rows.Next() {
		var t TopReferrer
		if err := rows.Scan(&t.ReferrerID, &t.Invited); err != nil {
			return nil, fmt.Errorf("scan top referrer: %w", err)
		}
		top = append(top, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return top, nil
}
