package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/assist-by/fleetguard/internal/atomicfile"
	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/exchange"
	"github.com/shopspring/decimal"
)

// PessimisticEntryMarkup은 진입가를 모르는 포지션에 적용하는 가상 진입가 배수입니다.
// 현재가보다 1% 높게 잡아 약한 손실 상태로 시작하게 합니다.
var PessimisticEntryMarkup = decimal.RequireFromString("1.01")

// snapshot은 계정별 스냅샷 파일 형식입니다
type snapshot struct {
	Positions []positionRecord `json:"positions"`
	SavedAt   time.Time        `json:"saved_at"`
}

type positionRecord struct {
	Symbol     string                `json:"symbol"`
	Quantity   decimal.Decimal       `json:"quantity"`
	EntryPrice decimal.Decimal       `json:"entry_price"`
	OpenedAt   time.Time             `json:"opened_at"`
	Source     domain.PositionSource `json:"source"`
	LastPrice  decimal.Decimal       `json:"last_price"`
}

// Store는 계정별 포지션 스냅샷을 디스크에 저장합니다
type Store struct {
	dir string
}

// New는 dir 아래에 스냅샷을 저장하는 Store를 생성합니다
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Path는 계정의 스냅샷 파일 경로를 반환합니다
func (s *Store) Path(accountID string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(accountID)
	return filepath.Join(s.dir, name+".json")
}

// Save는 포지션 목록을 원자적으로 저장합니다
func (s *Store) Save(accountID string, positions []domain.Position) error {
	snap := snapshot{
		Positions: make([]positionRecord, 0, len(positions)),
		SavedAt:   time.Now().UTC(),
	}
	for _, p := range positions {
		snap.Positions = append(snap.Positions, positionRecord{
			Symbol:     p.Symbol,
			Quantity:   p.Quantity,
			EntryPrice: p.EntryPrice,
			OpenedAt:   p.OpenedAt,
			Source:     p.Source,
			LastPrice:  p.CurrentPrice,
		})
	}

	if err := atomicfile.WriteJSON(s.Path(accountID), snap); err != nil {
		return fmt.Errorf("포지션 스냅샷 저장 실패 (%s): %w", accountID, err)
	}
	return nil
}

// Load는 저장된 포지션 목록을 읽습니다.
// 파일이 없으면 빈 목록을, 손상되었으면 파일을 격리한 뒤 빈 목록을 반환합니다.
func (s *Store) Load(accountID string) ([]domain.Position, error) {
	path := s.Path(accountID)

	var snap snapshot
	found, err := atomicfile.ReadJSON(path, &snap)
	if err != nil {
		if !errors.Is(err, atomicfile.ErrCorrupted) {
			return nil, err
		}
		dst, qErr := atomicfile.Quarantine(path)
		if qErr != nil {
			return nil, qErr
		}
		log.Printf("[%s] 손상된 포지션 스냅샷을 %s로 옮기고 빈 상태로 시작합니다: %v", accountID, dst, err)
		return []domain.Position{}, nil
	}
	if !found {
		return []domain.Position{}, nil
	}

	positions := make([]domain.Position, 0, len(snap.Positions))
	for _, r := range snap.Positions {
		positions = append(positions, domain.Position{
			Symbol:       r.Symbol,
			Quantity:     r.Quantity,
			EntryPrice:   r.EntryPrice,
			CurrentPrice: r.LastPrice,
			OpenedAt:     r.OpenedAt,
			Source:       r.Source,
		})
	}
	return positions, nil
}

// ReconcileReport는 Validate가 바꾼 내용을 요약합니다
type ReconcileReport struct {
	Kept     []string // 그대로 유지
	Adjusted []string // 거래소 수량으로 보정
	Dropped  []string // 거래소에 없어 제거
	Adopted  []string // 거래소에만 있어 편입
}

// Validate는 저장된 포지션을 거래소 상태와 대조합니다. 거래소가 항상 기준입니다.
//   - 거래소에 없는 포지션은 제거합니다
//   - 수량이 다르면 거래소 수량을 따릅니다
//   - 거래소에만 있는 포지션은 ADOPTED_FROM_EXCHANGE로 편입합니다
//
// 편입 포지션의 진입가는 거래소 보고값, resolver 순으로 찾고, 둘 다 없으면 현재가 × 1.01을 씁니다.
func (s *Store) Validate(ctx context.Context, persisted []domain.Position, live []domain.RawPosition, resolver exchange.EntryPriceResolver) ([]domain.Position, ReconcileReport) {
	var report ReconcileReport

	liveBySymbol := make(map[string]domain.RawPosition, len(live))
	for _, raw := range live {
		if !raw.Quantity.IsPositive() {
			continue
		}
		liveBySymbol[raw.Symbol] = raw
	}

	reconciled := make([]domain.Position, 0, len(liveBySymbol))
	seen := make(map[string]bool, len(persisted))

	for _, p := range persisted {
		raw, ok := liveBySymbol[p.Symbol]
		if !ok || seen[p.Symbol] {
			report.Dropped = append(report.Dropped, p.Symbol)
			continue
		}
		seen[p.Symbol] = true

		if !p.Quantity.Equal(raw.Quantity) {
			report.Adjusted = append(report.Adjusted, p.Symbol)
			p.Quantity = raw.Quantity
		} else {
			report.Kept = append(report.Kept, p.Symbol)
		}
		p.CurrentPrice = raw.Price
		reconciled = append(reconciled, p)
	}

	now := time.Now().UTC()
	symbols := make([]string, 0, len(liveBySymbol))
	for symbol := range liveBySymbol {
		if !seen[symbol] {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		raw := liveBySymbol[symbol]
		reconciled = append(reconciled, domain.Position{
			Symbol:       symbol,
			Quantity:     raw.Quantity,
			EntryPrice:   adoptedEntryPrice(ctx, raw, resolver),
			CurrentPrice: raw.Price,
			OpenedAt:     now,
			Source:       domain.SourceAdopted,
		})
		report.Adopted = append(report.Adopted, symbol)
	}

	return reconciled, report
}

func adoptedEntryPrice(ctx context.Context, raw domain.RawPosition, resolver exchange.EntryPriceResolver) decimal.Decimal {
	if raw.EntryPrice.IsPositive() {
		return raw.EntryPrice
	}
	if resolver != nil {
		price, err := resolver.ResolveEntryPrice(ctx, raw.Symbol)
		if err != nil {
			log.Printf("%s 진입가 조회 실패, 보수적 진입가 사용: %v", raw.Symbol, err)
		} else if price.IsPositive() {
			return price
		}
	}
	return raw.Price.Mul(PessimisticEntryMarkup)
}
