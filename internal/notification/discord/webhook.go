package discord

import (
	"fmt"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/notification"
)

const footer = "fleetguard 🛡️"

// SendError는 에러 알림을 전송합니다
func (c *Client) SendError(err error) error {
	embed := NewEmbed().
		SetTitle("에러 발생").
		SetDescription(fmt.Sprintf("```%v```", err)).
		SetColor(notification.ColorError).
		SetFooter(footer).
		SetTimestamp(time.Now())

	return c.sendToWebhook(c.errorWebhook, WebhookMessage{Embeds: []Embed{*embed}})
}

// SendInfo는 일반 정보 알림을 전송합니다
func (c *Client) SendInfo(message string) error {
	embed := NewEmbed().
		SetDescription(message).
		SetColor(notification.ColorInfo).
		SetFooter(footer).
		SetTimestamp(time.Now())

	return c.sendToWebhook(c.infoWebhook, WebhookMessage{Embeds: []Embed{*embed}})
}

// SendOrderResult는 주문 실행 결과를 전송합니다.
// 거절/에러 결과는 에러 채널로 보냅니다.
func (c *Client) SendOrderResult(r domain.OrderResult) error {
	embed := NewEmbed().
		SetTitle(fmt.Sprintf("[%s] %s %s: %s", r.Intent.AccountID, r.Intent.Side, r.Intent.Symbol, r.Status)).
		SetColor(notification.GetColorForStatus(r.Status)).
		AddField("사유", string(r.Intent.Reason), true).
		AddField("요청", fmt.Sprintf("%s %s", r.Intent.Amount.String(), r.Intent.AmountKind), true).
		AddField("시도", fmt.Sprintf("%d", r.Attempts), true).
		SetFooter(footer).
		SetTimestamp(r.CompletedAt)

	if r.Filled() {
		embed.SetDescription(fmt.Sprintf("**체결 수량**: %s\n**체결가**: $%s\n**주문 ID**: %s",
			r.FilledQty.String(), r.FilledPrice.StringFixed(4), r.OrderID))
	}
	if r.ErrorKind != domain.ErrorKindNone {
		embed.AddField("에러", fmt.Sprintf("%s: %s", r.ErrorKind, r.ErrorMessage), false)
	}

	webhook := c.tradeWebhook
	if r.Status == domain.StatusRejected || r.Status == domain.StatusError {
		webhook = c.errorWebhook
	}
	return c.sendToWebhook(webhook, WebhookMessage{Embeds: []Embed{*embed}})
}
