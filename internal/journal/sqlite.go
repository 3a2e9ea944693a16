package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/id"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLite는 모든 주문 결과를 기록하는 저널입니다.
// 거절/에러 결과만으로도 무엇을 시도했는지 재구성할 수 있도록 주문 제안 전체를 남깁니다.
type SQLite struct {
	db *sql.DB
}

// NewSQLite는 path의 SQLite 저널을 열고 스키마를 생성합니다
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("저널 열기 실패: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("저널 스키마 생성 실패: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Record는 주문 결과 하나를 기록합니다
func (j *SQLite) Record(ctx context.Context, r domain.OrderResult) error {
	completed := r.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	verified := 0
	if r.Verified {
		verified = 1
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO order_results
		(id, account_id, intent_id, symbol, side, amount, amount_kind, reason, order_id, status,
		 filled_qty, filled_price, error_kind, error_message, attempts, verified, intent_created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.At(completed), r.Intent.AccountID, r.Intent.ID, r.Intent.Symbol, string(r.Intent.Side),
		r.Intent.Amount.String(), string(r.Intent.AmountKind), string(r.Intent.Reason), r.OrderID, string(r.Status),
		r.FilledQty.String(), r.FilledPrice.String(), string(r.ErrorKind), r.ErrorMessage, r.Attempts, verified,
		r.Intent.CreatedAt.UTC().Format(time.RFC3339Nano), completed.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("주문 결과 기록 실패: %w", err)
	}
	return nil
}

// Query는 저널 조회 조건입니다
type Query struct {
	AccountID string               // 비어 있으면 전체 계정
	Statuses  []domain.OrderStatus // 비어 있으면 전체 상태
	Limit     int                  // 0이면 50
}

// Recent는 조건에 맞는 최근 결과를 최신순으로 반환합니다
func (j *SQLite) Recent(ctx context.Context, q Query) ([]domain.OrderResult, error) {
	var (
		where []string
		args  []any
	)
	if q.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, q.AccountID)
	}
	if len(q.Statuses) > 0 {
		marks := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ",")+")")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT account_id, intent_id, symbol, side, amount, amount_kind, reason, order_id, status,
		filled_qty, filled_price, error_kind, error_message, attempts, verified, intent_created_at, completed_at
		FROM order_results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("저널 조회 실패: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderResult
	for rows.Next() {
		var (
			r                                  domain.OrderResult
			side, amountKind, reason, status   string
			amount, filledQty, filledPrice     string
			errorKind, intentCreated, complete string
			verified                           int
		)
		if err := rows.Scan(&r.Intent.AccountID, &r.Intent.ID, &r.Intent.Symbol, &side, &amount, &amountKind, &reason,
			&r.OrderID, &status, &filledQty, &filledPrice, &errorKind, &r.ErrorMessage, &r.Attempts, &verified,
			&intentCreated, &complete); err != nil {
			return nil, fmt.Errorf("저널 행 읽기 실패: %w", err)
		}

		r.Intent.Side = domain.OrderSide(side)
		r.Intent.AmountKind = domain.AmountKind(amountKind)
		r.Intent.Reason = domain.OrderReason(reason)
		r.Status = domain.OrderStatus(status)
		r.ErrorKind = domain.ErrorKind(errorKind)
		r.Verified = verified == 1
		r.Intent.Amount = parseDecimal(amount)
		r.FilledQty = parseDecimal(filledQty)
		r.FilledPrice = parseDecimal(filledPrice)
		r.Intent.CreatedAt, _ = time.Parse(time.RFC3339Nano, intentCreated)
		r.CompletedAt, _ = time.Parse(time.RFC3339Nano, complete)

		out = append(out, r)
	}
	return out, rows.Err()
}

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// Close는 저널을 닫습니다
func (j *SQLite) Close() error {
	return j.db.Close()
}
