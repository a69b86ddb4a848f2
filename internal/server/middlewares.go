// SPDX-FileCopyrightText: © 2020 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"codeberg.org/readeck/authzbridge/internal/credentials"
	"codeberg.org/readeck/authzbridge/internal/metrics"
	"codeberg.org/readeck/authzbridge/internal/predicates"
)

const (
	gzipEtagSuffix = "-gzip"
)

// WithACL checks the request's path against the server's ACL registry.
// It must run after the credentials are set up.
func (s *Server) WithACL(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := s.routePath(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		err := s.Registry.Authorize(r.Context(), p)
		c := credentials.Get(r.Context())
		AddLogAttrs(r, slog.Group("access",
			slog.String("user", c.Identity),
			slog.Bool("granted", err == nil),
		))
		logger := Log(r).With(
			slog.String("user", c.Identity),
			slog.String("path", p),
			slog.Bool("granted", err == nil),
		)
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			logger.Debug("access control",
				slog.Any("groups", c.Groups.Sorted()),
				slog.Any("permissions", c.Permissions.Sorted()),
			)
		}

		if err != nil {
			if _, ok := predicates.AsNotAuthorized(err); ok {
				s.Metrics.Denied(metrics.DeniedByACL)
			}
			Err(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithPredicate returns a middleware that refuses the request when p
// is not met.
func (s *Server) WithPredicate(p predicates.Predicate) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := predicates.Check(r.Context(), p); err != nil {
				if _, ok := predicates.AsNotAuthorized(err); ok {
					s.Metrics.Denied(metrics.DeniedByPredicate)
				}
				Err(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CannonicalPaths cleans the URL path and removes trailing slashes.
// It returns a 308 redirection so any form will pass through.
func CannonicalPaths(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p string
		rctx := chi.RouteContext(r.Context())
		if rctx != nil && rctx.RoutePath != "" {
			p = rctx.RoutePath
		} else {
			p = r.URL.Path
		}

		if len(p) > 1 {
			p2 := path.Clean(p)
			if strings.HasSuffix(p, "/") && p2 != "/" {
				p2 += "/"
			}
			if p != p2 {
				if r.URL.RawQuery != "" {
					p2 = fmt.Sprintf("%s?%s", p2, r.URL.RawQuery)
				}
				http.Redirect(w, r, p2, http.StatusPermanentRedirect)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// CompressResponse returns a gzipped response for some content types.
// It uses gzhttp that provides a BREACH mittigation.
func CompressResponse(next http.Handler) http.Handler {
	w, err := gzhttp.NewWrapper(
		gzhttp.CompressionLevel(5),
		gzhttp.ContentTypes([]string{
			"application/json",
			"text/plain",
		}),
		gzhttp.SuffixETag(gzipEtagSuffix),
		gzhttp.MinSize(1024),
		gzhttp.RandomJitter(32, 0, false),
	)
	if err != nil {
		panic(err)
	}
	return w(next)
}

// ErrorPages is a middleware that overrides the response writer so
// that a plain text error is sent as a JSON message when the client
// asks for JSON.
//
// Conditions are: response status must be >= 400, its content-type
// is text/plain and the client accepts application/json.
func ErrorPages(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if negotiate(r) != "application/json" {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(&responseWriterInterceptor{ResponseWriter: w}, r)
	})
}

type responseWriterInterceptor struct {
	http.ResponseWriter
	statusCode int
	override   bool
	written    bool
}

// WriteHeader intercepts the status code sent to the writer and decides
// whether the body must be replaced.
func (w *responseWriterInterceptor) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	ct, _, _ := strings.Cut(w.Header().Get("Content-Type"), ";")
	w.override = statusCode >= 400 && (ct == "" || ct == "text/plain")

	if w.override {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write discards the original content and sends a JSON message instead,
// when needed. The first line of the original content is the message.
func (w *responseWriterInterceptor) Write(c []byte) (int, error) {
	if w.statusCode == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if !w.override {
		return w.ResponseWriter.Write(c)
	}
	if w.written {
		return len(c), nil
	}
	w.written = true

	msg, _, _ := strings.Cut(strings.TrimSpace(string(c)), "\n")
	if msg == "" {
		msg = http.StatusText(w.statusCode)
	}
	b, _ := json.Marshal(Message{
		Status:  w.statusCode,
		Message: msg,
	})
	if _, err := w.ResponseWriter.Write(b); err != nil {
		return 0, err
	}
	return len(c), nil
}

// Unwrap returns the original writer.
func (w *responseWriterInterceptor) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
