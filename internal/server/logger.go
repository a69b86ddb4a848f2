// SPDX-FileCopyrightText: © 2021 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"codeberg.org/readeck/authzbridge/pkg/http/request"
)

// Logger is a middleware that logs every request once its response
// is sent. Other middlewares can add attributes to the final record
// with [AddLogAttrs].
func Logger() func(next http.Handler) http.Handler {
	return middleware.RequestLogger(accessLogger{})
}

// AddLogAttrs adds attributes to the access log record of a request.
func AddLogAttrs(r *http.Request, attrs ...slog.Attr) {
	if e, ok := middleware.GetLogEntry(r).(*accessEntry); ok {
		e.extra = append(e.extra, attrs...)
	}
}

type accessLogger struct{}

func (accessLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	e := &accessEntry{
		ctx: r.Context(),
		id:  slog.String("@id", GetReqID(r)),
		req: slog.Group("request",
			slog.String("method", r.Method),
			slog.String("path", r.RequestURI),
			slog.String("proto", r.Proto),
			slog.String("remote_addr", request.GetRealIP(r.Context()).String()),
		),
	}
	slog.LogAttrs(e.ctx, slog.LevelDebug, "http "+r.Method, e.id, e.req)

	return e
}

type accessEntry struct {
	ctx   context.Context
	id    slog.Attr
	req   slog.Attr
	extra []slog.Attr
}

func (e *accessEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	attrs := []slog.Attr{e.id, e.req}
	attrs = append(attrs, e.extra...)
	attrs = append(attrs, slog.Group("response",
		slog.Int("status", status),
		slog.Int("length", bytes),
		slog.Float64("elapsed_ms", float64(elapsed.Microseconds())/1000),
	))

	slog.LogAttrs(e.ctx, level, "http "+strconv.Itoa(status)+" "+http.StatusText(status), attrs...)
}

func (e *accessEntry) Panic(v any, _ []byte) {
	slog.LogAttrs(e.ctx, slog.LevelError, "panic", e.id, e.req, slog.Any("err", v))
}
