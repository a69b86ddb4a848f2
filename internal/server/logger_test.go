// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"codeberg.org/readeck/authzbridge/pkg/http/request"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	res := []map[string]any{}
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		rec := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		res = append(res, rec)
	}
	return res
}

func withLogger(h http.Handler) http.Handler {
	return request.InitRequest()(Logger()(h))
}

func TestLogger(t *testing.T) {
	t.Run("access record", func(t *testing.T) {
		buf := captureLogs(t)
		h := withLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			AddLogAttrs(r, slog.String("user", "alice"))
			w.WriteHeader(http.StatusForbidden)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/app2/secret", nil))

		records := logRecords(t, buf)
		require.Len(t, records, 2)
		require.Equal(t, "DEBUG", records[0]["level"])
		require.Equal(t, "http GET", records[0]["msg"])

		rec := records[1]
		require.Equal(t, "INFO", rec["level"])
		require.Equal(t, "http 403 Forbidden", rec["msg"])
		require.Equal(t, "alice", rec["user"])
		require.NotEmpty(t, rec["@id"])
		require.Equal(t, "/app2/secret", rec["request"].(map[string]any)["path"])
		require.InDelta(t, 403, rec["response"].(map[string]any)["status"], 0)
	})

	t.Run("server error", func(t *testing.T) {
		buf := captureLogs(t)
		h := withLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		records := logRecords(t, buf)
		require.Equal(t, "ERROR", records[len(records)-1]["level"])
	})

	t.Run("no log entry", func(_ *testing.T) {
		AddLogAttrs(httptest.NewRequest(http.MethodGet, "/", nil), slog.String("user", "alice"))
	})
}
