package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

const orderColumns = `id, user_id, service_code, status, original_price, price, discount,
	discount_type, COALESCE(promo_code, ''), COALESCE(referrer_id, 0),
	COALESCE(invoice_payload, ''), payment_ref, needs_demographics, age, sex,
	question, documents, rating, clarification_count, last_clarification_at,
	can_clarify_until, admin_id, created_at, updated_at, answered_at`

// CreateOrderParams описывает атомарное создание заказа вместе со списанием скидок.
type CreateOrderParams struct {
	Order model.Order
	// PromoAmount — точная сумма скидки промокода для записи в леджер.
	PromoAmount float64
	// ConsumeReferral указывает, что котировка включает реферальную скидку
	// и ожидающая запись должна быть переведена в completed этой же транзакцией.
	ConsumeReferral bool
}

// CreateOrder создаёт заказ. Списание промокода и расход реферальной скидки
// выполняются в той же транзакции: заказ не может быть создан со скидкой,
// которая не зафиксирована в леджерах.
func (r *PostgresRepository) CreateOrder(ctx context.Context, p CreateOrderParams) (int64, error) {
	var id int64

	err := r.withRetry(ctx, func() error {
		return r.inTx(ctx, func(tx pgx.Tx) error {
			o := p.Order

			if o.PromoCode != "" {
				if err := validatePromoForUpdate(ctx, tx, o.PromoCode); err != nil {
					return err
				}
			}

			docs, err := json.Marshal(o.Documents)
			if err != nil {
				return fmt.Errorf("marshal documents: %w", err)
			}
			if o.Documents == nil {
				docs = []byte("[]")
			}

			err = tx.QueryRow(ctx,
				`INSERT INTO orders (user_id, service_code, status, original_price, price,
				                     discount, discount_type, promo_code, referrer_id,
				                     invoice_payload, needs_demographics, documents)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, 0), NULLIF($10, ''), $11, $12)
				 RETURNING id`,
				o.UserID, o.ServiceCode, string(o.Status), o.OriginalPrice, o.Price,
				o.Discount, string(o.DiscountType), o.PromoCode, o.ReferrerID,
				o.InvoicePayload, o.NeedsDemographics, docs,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}

			if o.PromoCode != "" {
				if err := consumePromo(ctx, tx, o.PromoCode, o.UserID, id, p.PromoAmount); err != nil {
					return err
				}
			}

			if p.ConsumeReferral {
				cmd, err := tx.Exec(ctx,
					`UPDATE referrals
					 SET status = $1, order_id = $2
					 WHERE referred_id = $3 AND status = $4 AND order_id IS NULL`,
					string(model.ReferralStatusCompleted), id,
					o.UserID, string(model.ReferralStatusPending),
				)
				if err != nil {
					return fmt.Errorf("consume referral: %w", err)
				}
				if cmd.RowsAffected() == 0 {
					// Котировка обещала реферальную скидку, но запись уже
					// израсходована конкурентной попыткой.
					return &model.ConcurrencyError{Reason: "referral discount no longer available"}
				}
			}

			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderByPayload возвращает заказ по платёжному идентификатору счёта.
func (r *PostgresRepository) GetOrderByPayload(ctx context.Context, payload string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE invoice_payload = $1`, payload)
	return scanOrder(row)
}

// OrderFilter задаёт параметры выборки заказов.
type OrderFilter struct {
	UserID   int64
	Statuses []model.OrderStatus
	Limit    int
}

// ListOrders возвращает заказы по фильтру, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE TRUE`
	args := []any{}

	if f.UserID != 0 {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

// MarkPaid переводит заказ created → pending, сохраняя платёжную ссылку провайдера.
func (r *PostgresRepository) MarkPaid(ctx context.Context, id int64, paymentRef string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE orders SET status = $1, payment_ref = $2, updated_at = now()
			 WHERE id = $3 AND status = $4`,
			string(model.OrderStatusPending), paymentRef, id, string(model.OrderStatusCreated),
		)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return resolveTransition(ctx, tx, id, "markPaid", model.OrderStatusCreated)
		}
		return nil
	})
}

// UpdateDetails сохраняет демографию, документы и вопрос, переводя pending → processing.
func (r *PostgresRepository) UpdateDetails(ctx context.Context, id int64, age *int, sex, question string, documents []model.Document) error {
	docs, err := json.Marshal(documents)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE orders
			 SET status = $1, age = $2, sex = $3, question = $4, documents = $5, updated_at = now()
			 WHERE id = $6 AND status = $7`,
			string(model.OrderStatusProcessing), age, sex, question, docs,
			id, string(model.OrderStatusPending),
		)
		if err != nil {
			return fmt.Errorf("update details: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return resolveTransition(ctx, tx, id, "submitDetails", model.OrderStatusPending)
		}
		return nil
	})
}

// CompleteOrder завершает заказ ответом оператора. Ответ сохраняется как
// уточнение, бонус пригласившему начисляется той же транзакцией.
func (r *PostgresRepository) CompleteOrder(ctx context.Context, id, adminID int64, answer string, answeredAt, canClarifyUntil time.Time, referrerBonus float64) error {
	nonTerminal := []model.OrderStatus{
		model.OrderStatusCreated, model.OrderStatusPending, model.OrderStatusProcessing,
		model.OrderStatusAwaitingClarification, model.OrderStatusNeedsNewDocs,
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		var userID int64
		var referrerID *int64
		err := tx.QueryRow(ctx,
			`UPDATE orders
			 SET status = $1, admin_id = $2, answered_at = $3, can_clarify_until = $4, updated_at = now()
			 WHERE id = $5 AND status = ANY($6)
			 RETURNING user_id, referrer_id`,
			string(model.OrderStatusCompleted), adminID, answeredAt, canClarifyUntil,
			id, statusStrings(nonTerminal),
		).Scan(&userID, &referrerID)
		if errors.Is(err, pgx.ErrNoRows) {
			return resolveTransition(ctx, tx, id, "operatorRespond", nonTerminal...)
		}
		if err != nil {
			return fmt.Errorf("complete order: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO clarifications (order_id, author_id, text, is_from_user, sent_at)
			 VALUES ($1, $2, $3, FALSE, $4)`,
			id, adminID, answer, answeredAt,
		)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}

		if referrerID != nil && referrerBonus > 0 {
			_, err = tx.Exec(ctx,
				`UPDATE referrals SET bonus = bonus + $1
				 WHERE referred_id = $2 AND order_id = $3`,
				referrerBonus, userID, id,
			)
			if err != nil {
				return fmt.Errorf("accrue referral bonus: %w", err)
			}
		}

		return nil
	})
}

// CancelOrder отменяет нетерминальный заказ.
func (r *PostgresRepository) CancelOrder(ctx context.Context, id, adminID int64) error {
	nonTerminal := []model.OrderStatus{
		model.OrderStatusCreated, model.OrderStatusPending, model.OrderStatusProcessing,
		model.OrderStatusAwaitingClarification, model.OrderStatusNeedsNewDocs,
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE orders SET status = $1, admin_id = $2, updated_at = now()
			 WHERE id = $3 AND status = ANY($4)`,
			string(model.OrderStatusCancelled), adminID, id, statusStrings(nonTerminal),
		)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return resolveTransition(ctx, tx, id, "operatorCancel", nonTerminal...)
		}
		return nil
	})
}

// MarkNeedsNewDocs помечает заказ как требующий новых документов и записывает
// запрос оператора как уточнение-отсечку с is_admin_request = TRUE.
// SetPrice меняет цену неоплаченного заказа и привязывает новый счёт.
// Диапазон цены охраняет constraint orders_price_range.
func (r *PostgresRepository) SetPrice(ctx context.Context, id int64, price int64, invoicePayload string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE orders SET price = $1, invoice_payload = $2, updated_at = now()
			 WHERE id = $3 AND status = $4`,
			price, invoicePayload, id, string(model.OrderStatusCreated),
		)
		if err != nil {
			return fmt.Errorf("set price: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return resolveTransition(ctx, tx, id, "operatorSetPrice", model.OrderStatusCreated)
		}
		return nil
	})
}

func (r *PostgresRepository) MarkNeedsNewDocs(ctx context.Context, id, adminID int64, reason string, requestedAt time.Time) error {
	nonTerminal := []model.OrderStatus{
		model.OrderStatusCreated, model.OrderStatusPending, model.OrderStatusProcessing,
		model.OrderStatusAwaitingClarification, model.OrderStatusNeedsNewDocs,
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE orders SET status = $1, updated_at = now()
			 WHERE id = $2 AND status = ANY($3)`,
			string(model.OrderStatusNeedsNewDocs), id, statusStrings(nonTerminal),
		)
		if err != nil {
			return fmt.Errorf("mark needs new docs: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return resolveTransition(ctx, tx, id, "operatorRequestNewDocs", nonTerminal...)
		}

		// Метка отсечки резабмита пишется часами приложения, как и окно уточнений:
		// документы пользователя датируются тем же источником времени.
		_, err = tx.Exec(ctx,
			`INSERT INTO clarifications (order_id, author_id, text, is_from_user, is_admin_request, sent_at)
			 VALUES ($1, $2, $3, FALSE, TRUE, $4)`,
			id, adminID, reason, requestedAt,
		)
		if err != nil {
			return fmt.Errorf("insert admin request: %w", err)
		}
		return nil
	})
}

// ResubmitOrder возвращает заказ needs_new_docs → pending, если после последнего
// запроса оператора пользователь прислал хотя бы один документ.
func (r *PostgresRepository) ResubmitOrder(ctx context.Context, id, userID int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var newDocs int
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM clarifications
			 WHERE order_id = $1 AND author_id = $2 AND is_from_user
			   AND document IS NOT NULL
			   AND sent_at > (
			       SELECT MAX(sent_at) FROM clarifications
			       WHERE order_id = $1 AND is_admin_request
			   )`,
			id, userID,
		).Scan(&newDocs)
		if err != nil {
			return fmt.Errorf("count new documents: %w", err)
		}
		if newDocs == 0 {
			return model.ErrNoNewDocuments
		}

		cmd, err := tx.Exec(ctx,
			`UPDATE orders
			 SET status = $1, clarification_count = clarification_count + 1, updated_at = now()
			 WHERE id = $2 AND status = $3`,
			string(model.OrderStatusPending), id, string(model.OrderStatusNeedsNewDocs),
		)
		if err != nil {
			return fmt.Errorf("resubmit order: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return resolveTransition(ctx, tx, id, "userResubmit", model.OrderStatusNeedsNewDocs)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO clarifications (order_id, author_id, text, is_from_user)
			 VALUES ($1, $2, $3, TRUE)`,
			id, userID, fmt.Sprintf("Пользователь загрузил %d новых документов", newDocs),
		)
		if err != nil {
			return fmt.Errorf("insert resubmit note: %w", err)
		}
		return nil
	})
}

// SaveRating сохраняет оценку завершённого заказа. Повторная оценка перезаписывает прежнюю.
func (r *PostgresRepository) SaveRating(ctx context.Context, id, userID int64, rating int) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE orders SET rating = $1, updated_at = now()
			 WHERE id = $2 AND user_id = $3 AND status = $4`,
			rating, id, userID, string(model.OrderStatusCompleted),
		)
		if err != nil {
			return fmt.Errorf("save rating: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return resolveTransition(ctx, tx, id, "rate", model.OrderStatusCompleted)
		}
		return nil
	})
}

// resolveTransition различает отсутствие заказа, недопустимый статус и
// проигрыш конкурентной гонки после неудачного CAS-обновления.
func resolveTransition(ctx context.Context, tx pgx.Tx, id int64, op string, allowed ...model.OrderStatus) error {
	var raw string
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	status, err := model.ParseOrderStatus(raw)
	if err != nil {
		return err
	}

	for _, a := range allowed {
		if status == a {
			return &model.ConcurrencyError{Reason: fmt.Sprintf("%s on order %d", op, id)}
		}
	}
	return &model.StateError{Op: op, Status: status}
}

func statusStrings(statuses []model.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o      model.Order
		status string
		dtype  string
		docs   []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.ServiceCode, &status, &o.OriginalPrice, &o.Price, &o.Discount,
		&dtype, &o.PromoCode, &o.ReferrerID,
		&o.InvoicePayload, &o.PaymentRef, &o.NeedsDemographics, &o.Age, &o.Sex,
		&o.Question, &docs, &o.Rating, &o.ClarificationCount, &o.LastClarificationAt,
		&o.CanClarifyUntil, &o.AdminID, &o.CreatedAt, &o.UpdatedAt, &o.AnsweredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Status, err = model.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	o.DiscountType = model.DiscountType(dtype)

	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &o.Documents); err != nil {
			return nil, fmt.Errorf("unmarshal documents: %w", err)
		}
	}

	return &o, nil
}
