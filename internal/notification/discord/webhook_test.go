package discord

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/notification"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu       sync.Mutex
	paths    []string
	messages []WebhookMessage
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg WebhookMessage
		_ = json.NewDecoder(r.Body).Decode(&msg)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.messages = append(c.messages, msg)
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestSendOrderResultRouting(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusNoContent)
	client := NewClient(srv.URL+"/trade", srv.URL+"/error", srv.URL+"/info", WithTimeout(time.Second))

	intent := domain.NewOrderIntent("user-1", "BTCUSDT", domain.Sell, decimal.RequireFromString("0.1"), domain.BaseQty, domain.CapEviction)
	filled := domain.OrderResult{Intent: intent, Status: domain.StatusFilled, FilledQty: decimal.RequireFromString("0.1"), FilledPrice: decimal.RequireFromString("60000"), Attempts: 1}
	rejected := domain.OrderResult{Intent: intent, Status: domain.StatusRejected, ErrorKind: domain.ErrorKindPermanent, ErrorMessage: "잔고 부족", Attempts: 1}

	require.NoError(t, client.SendOrderResult(filled))
	require.NoError(t, client.SendOrderResult(rejected))

	require.Equal(t, []string{"/trade", "/error"}, got.paths)
	assert.Equal(t, notification.ColorSuccess, got.messages[0].Embeds[0].Color)
	assert.Equal(t, notification.ColorError, got.messages[1].Embeds[0].Color)
	assert.Contains(t, got.messages[1].Embeds[0].Title, "REJECTED")
}

func TestEmptyWebhookIsSkipped(t *testing.T) {
	client := NewClient("", "", "")
	assert.NoError(t, client.SendInfo("무시됨"))
	assert.NoError(t, client.SendError(errors.New("무시됨")))
}

func TestWebhookErrorStatus(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusBadRequest)
	client := NewClient("", "", srv.URL+"/info")

	err := client.SendInfo("hello")
	assert.Error(t, err)
}
