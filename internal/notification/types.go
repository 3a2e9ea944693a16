package notification

import "github.com/assist-by/fleetguard/internal/domain"

const (
	ColorSuccess = 0x00FF00 // 녹색
	ColorError   = 0xFF0000 // 빨간색
	ColorInfo    = 0x0000FF // 파란색
	ColorWarning = 0xFFA500 // 주황색
)

// Notifier는 운영자 알림 전송 인터페이스를 정의합니다
type Notifier interface {
	// SendError는 에러 알림을 전송합니다
	SendError(err error) error

	// SendInfo는 일반 정보 알림을 전송합니다
	SendInfo(message string) error

	// SendOrderResult는 주문 실행 결과를 전송합니다
	SendOrderResult(result domain.OrderResult) error
}

// GetColorForStatus는 주문 결과 상태에 따른 색상을 반환합니다
func GetColorForStatus(status domain.OrderStatus) int {
	switch status {
	case domain.StatusFilled:
		return ColorSuccess
	case domain.StatusRejected, domain.StatusError:
		return ColorError
	case domain.StatusPartial:
		return ColorWarning
	default:
		return ColorInfo
	}
}
