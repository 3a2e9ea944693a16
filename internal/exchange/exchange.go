// internal/exchange/exchange.go
package exchange

import (
	"context"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/shopspring/decimal"
)

// Gateway는 하나의 계정이 사용하는 거래소 연결 인터페이스입니다.
// 계정마다 별도의 인스턴스를 사용합니다.
type Gateway interface {
	// 계정 데이터 조회
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	GetPositions(ctx context.Context) ([]domain.RawPosition, error)

	// 거래 기능
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error)

	// 주문 상태 조회 (부작용 없이 반복 호출 가능해야 합니다).
	// orderID에는 거래소 주문 ID 또는 클라이언트 주문 ID를 넘길 수 있습니다.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderResponse, error)
}

// EntryPriceResolver는 주문 내역에서 실제 진입가를 복원할 수 있는 거래소가 구현합니다.
// 진입가를 알 수 없으면 0을 반환합니다.
type EntryPriceResolver interface {
	ResolveEntryPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceQuoter는 심볼의 현재가를 조회할 수 있는 거래소가 구현합니다.
// 코인 수량 단위 매수의 필요 자본을 계산할 때 사용합니다.
type PriceQuoter interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
