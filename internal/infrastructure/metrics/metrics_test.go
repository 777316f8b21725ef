package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.Authentication("token_exchange", "success")
	m.Authentication("token_exchange", "success")
	m.TokenRequest("token_exchange", nil, 10*time.Millisecond)
	m.TokenRequest("token_exchange", errors.New("boom"), 10*time.Millisecond)
	m.AfterAuthHook(nil)
	m.BotRejected()
	m.Webhook("app/uninstalled", "processed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authentications.WithLabelValues("token_exchange", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenRequests.WithLabelValues("token_exchange", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenRequests.WithLabelValues("token_exchange", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.afterAuthHooks.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.botRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("app/uninstalled", "processed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Authentication("merchant_custom", "success")
		m.TokenRequest("refresh_token", nil, time.Second)
		m.AfterAuthHook(nil)
		m.BotRejected()
		m.Webhook("shop/redact", "error")
	})
}
