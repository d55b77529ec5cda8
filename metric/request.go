package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus contains the metrics of the HTTP requests made to a node or a
// remote signer
type Prometheus struct {
	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec
}

// NewPrometheus generates a new set of request metrics
func NewPrometheus() (*Prometheus, error) {
	reqCnt := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespaceRPC,
			Name:      "requests_total",
			Help:      "How many HTTP requests made, partitioned by status code, method and host",
		},
		[]string{"code", "method", "host"},
	)
	if err := registerCollector(reqCnt); err != nil {
		return nil, err
	}
	reqDur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceRPC,
			Name:      "request_duration_seconds",
			Help:      "The HTTP request latencies in seconds",
		},
		[]string{"code", "method", "host"},
	)
	if err := registerCollector(reqDur); err != nil {
		return nil, err
	}
	return &Prometheus{
		reqCnt: reqCnt,
		reqDur: reqDur,
	}, nil
}

type roundTripper struct {
	p    *Prometheus
	next http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	elapsed := float64(time.Since(start)) / float64(time.Second)
	rt.p.reqDur.WithLabelValues(status, req.Method, req.URL.Host).Observe(elapsed)
	rt.p.reqCnt.WithLabelValues(status, req.Method, req.URL.Host).Inc()
	return resp, err
}

// RoundTripper wraps next so that every request is measured.  A nil next
// means http.DefaultTransport.
func (p *Prometheus) RoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &roundTripper{p: p, next: next}
}

// HTTPClient returns an http client whose requests are measured
func (p *Prometheus) HTTPClient() *http.Client {
	return &http.Client{Transport: p.RoundTripper(nil)}
}
