package position

import (
	"sort"

	"github.com/assist-by/fleetguard/internal/domain"
)

// SortByValue는 포지션을 USD 가치 내림차순으로 정렬합니다.
// 가치가 같으면 먼저 진입한 포지션, 그 다음 심볼 순입니다.
func SortByValue(positions []domain.Position) {
	sort.SliceStable(positions, func(i, j int) bool {
		vi, vj := positions[i].USDValue(), positions[j].USDValue()
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		if !positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].OpenedAt.Before(positions[j].OpenedAt)
		}
		return positions[i].Symbol < positions[j].Symbol
	})
}

// Symbols는 포지션들의 심볼 목록을 반환합니다
func Symbols(positions []domain.Position) []string {
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = p.Symbol
	}
	return out
}
