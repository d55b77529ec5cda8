package metric

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectError(t *testing.T) {
	before := testutil.ToFloat64(Errors.WithLabelValues("boom"))
	CollectError(errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(Errors.WithLabelValues("boom")))
}

func TestMeasureDuration(t *testing.T) {
	MeasureDuration(WaitReceipt, time.Now(), "test", "ok")
	assert.GreaterOrEqual(t, testutil.CollectAndCount(WaitReceipt), 1)
}

func TestRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	p, err := NewPrometheus()
	require.NoError(t, err)
	resp, err := p.HTTPClient().Get(server.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, 1, testutil.CollectAndCount(p.reqCnt))
	host := resp.Request.URL.Host
	assert.Equal(t, float64(1), testutil.ToFloat64(p.reqCnt.WithLabelValues("418", "GET", host)))
}
