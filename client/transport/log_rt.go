// Package transport holds http.RoundTripper wrappers for the client.
package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LogRoundTripper debug-logs each outgoing request. The request is passed
// to Base untouched.
type LogRoundTripper struct {
	Base   http.RoundTripper
	Logger *zap.SugaredLogger
}

// RoundTrip implements http.RoundTripper.
func (l *LogRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := l.Base
	if rt == nil {
		rt = http.DefaultTransport
	}
	if l.Logger == nil {
		return rt.RoundTrip(req)
	}

	start := time.Now()
	resp, err := rt.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		l.Logger.Debugf("method=%s url=%s duration=%s error=%v", req.Method, req.URL.Redacted(), duration, err)
		return nil, err
	}
	l.Logger.Debugf("method=%s url=%s status=%d size=%d duration=%s",
		req.Method, req.URL.Redacted(), resp.StatusCode, req.ContentLength, duration)
	return resp, nil
}
