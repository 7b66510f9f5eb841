package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eotel/go-machinist/model"
)

func TestRun_Once(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var b model.Body
		require.NoError(t, json.Unmarshal(raw, &b))
		require.Equal(t, "test-agent", b.Agent)
		require.NotEmpty(t, b.Metrics)
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	for _, k := range []string{"CONFIG", "MACHINIST_URL", "MACHINIST_API_KEY", "MACHINIST_AGENT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	err := run([]string{"-u", ts.URL, "-k", "k", "-n", "test-agent", "-once", "-disk", t.TempDir(), "-v", "error"})
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load())
}

func TestRun_ConfigError(t *testing.T) {
	t.Setenv("MACHINIST_API_KEY", "")
	t.Setenv("CONFIG", "")
	require.Error(t, run([]string{"-n", "a"}))
}
