// Package signal은 외부 전략이 만든 주문 후보를 감독자에게 전달합니다.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Source는 계정별 주문 후보를 제공합니다
type Source interface {
	NextCandidates(ctx context.Context, account domain.Account) ([]domain.OrderIntent, error)
}

// SourceFunc는 함수를 Source로 사용할 수 있게 합니다
type SourceFunc func(ctx context.Context, account domain.Account) ([]domain.OrderIntent, error)

// NextCandidates는 Source 인터페이스를 구현합니다
func (f SourceFunc) NextCandidates(ctx context.Context, account domain.Account) ([]domain.OrderIntent, error) {
	return f(ctx, account)
}

// Candidate는 드롭 파일의 후보 한 건입니다
type Candidate struct {
	Symbol     string `yaml:"symbol"`
	Side       string `yaml:"side"`                  // BUY / SELL
	Amount     string `yaml:"amount"`                // 수량 또는 USD 금액
	AmountKind string `yaml:"amount_kind,omitempty"` // 생략 시 BUY는 QUOTE_USD, SELL은 BASE_QTY
}

// DropFile은 <dir>/<account>.yaml 파일 형식입니다
type DropFile struct {
	Candidates []Candidate `yaml:"candidates"`
}

// Intent는 후보를 주문 제안으로 변환합니다
func (c Candidate) Intent(accountID string) (domain.OrderIntent, error) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Symbol))
	if symbol == "" {
		return domain.OrderIntent{}, fmt.Errorf("심볼이 비어 있습니다")
	}

	side := domain.OrderSide(strings.ToUpper(strings.TrimSpace(c.Side)))
	var reason domain.OrderReason
	kind := domain.AmountKind(strings.ToUpper(strings.TrimSpace(c.AmountKind)))
	switch side {
	case domain.Buy:
		reason = domain.StrategyEntry
		if kind == "" {
			kind = domain.QuoteUSD
		}
	case domain.Sell:
		reason = domain.StrategyExit
		if kind == "" {
			kind = domain.BaseQty
		}
	default:
		return domain.OrderIntent{}, fmt.Errorf("%s: 알 수 없는 주문 방향 %q", symbol, c.Side)
	}
	if kind != domain.QuoteUSD && kind != domain.BaseQty {
		return domain.OrderIntent{}, fmt.Errorf("%s: 알 수 없는 수량 단위 %q", symbol, c.AmountKind)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(c.Amount))
	if err != nil {
		return domain.OrderIntent{}, fmt.Errorf("%s: 잘못된 수량 %q: %w", symbol, c.Amount, err)
	}
	if !amount.IsPositive() {
		return domain.OrderIntent{}, fmt.Errorf("%s: 수량은 0보다 커야 합니다", symbol)
	}

	return domain.NewOrderIntent(accountID, symbol, side, amount, kind, reason), nil
}

// FileQueue는 디렉터리에 놓인 계정별 YAML 파일을 읽어 후보로 소비합니다.
// 읽은 파일은 삭제되므로 같은 후보가 두 번 실행되지 않습니다.
// 파싱하지 못한 파일은 <path>.<ts>.rejected로 남습니다.
type FileQueue struct {
	dir string
	mu  sync.Mutex
}

// NewFileQueue는 새로운 파일 큐를 생성합니다
func NewFileQueue(dir string) *FileQueue {
	return &FileQueue{dir: dir}
}

// Path는 계정의 드롭 파일 경로입니다
func (q *FileQueue) Path(accountID string) string {
	return filepath.Join(q.dir, accountID+".yaml")
}

// Rejected는 읽지 못한 드롭 파일을 보관하는 경로 패턴입니다
func (q *FileQueue) Rejected(accountID string) string {
	return q.Path(accountID) + ".*.rejected"
}

// reject는 읽지 못한 파일을 .rejected로 옮겨 운영자가 고칠 수 있게 남깁니다
func (q *FileQueue) reject(accountID, claimed string, cause error) error {
	dst := strings.TrimSuffix(claimed, ".processing") + ".rejected"
	if err := os.Rename(claimed, dst); err != nil {
		log.Printf("[%s] 시그널 파일 보관 실패: %v", accountID, err)
	} else {
		log.Printf("[%s] 읽지 못한 시그널 파일을 %s로 옮겼습니다", accountID, dst)
	}
	return cause
}

// NextCandidates는 계정 드롭 파일을 소비합니다. 파일이 없으면 후보가 없습니다.
// 잘못된 후보는 로그만 남기고 건너뜁니다.
func (q *FileQueue) NextCandidates(ctx context.Context, account domain.Account) ([]domain.OrderIntent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	path := q.Path(account.ID)
	claimed := fmt.Sprintf("%s.%d.processing", path, time.Now().UnixNano())

	// 작성 중인 파일과 섞이지 않도록 먼저 이름을 바꿔 소유권을 가져옵니다
	if err := os.Rename(path, claimed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("시그널 파일 가져오기 실패: %w", err)
	}

	data, err := os.ReadFile(claimed)
	if err != nil {
		return nil, q.reject(account.ID, claimed, fmt.Errorf("시그널 파일 읽기 실패: %w", err))
	}

	var file DropFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, q.reject(account.ID, claimed, fmt.Errorf("시그널 파일 파싱 실패: %w", err))
	}
	if err := os.Remove(claimed); err != nil {
		log.Printf("[%s] 처리한 시그널 파일 삭제 실패: %v", account.ID, err)
	}

	intents := make([]domain.OrderIntent, 0, len(file.Candidates))
	for i, c := range file.Candidates {
		if err := ctx.Err(); err != nil {
			return intents, err
		}
		intent, err := c.Intent(account.ID)
		if err != nil {
			log.Printf("[%s] 시그널 후보 %d 무시: %v", account.ID, i, err)
			continue
		}
		intents = append(intents, intent)
	}

	if len(intents) > 0 {
		log.Printf("[%s] 시그널 후보 %d개 수신", account.ID, len(intents))
	}
	return intents, nil
}
