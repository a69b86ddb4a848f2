// SPDX-FileCopyrightText: © 2020 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package server is the main HTTP server.
// It defines common middlewares, guards, permission handlers, etc.
package server

import (
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"codeberg.org/readeck/authzbridge/configs"
	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/authz"
	"codeberg.org/readeck/authzbridge/internal/credentials"
	"codeberg.org/readeck/authzbridge/internal/metrics"
	"codeberg.org/readeck/authzbridge/pkg/http/request"
)

// Options are the [New] parameters.
type Options struct {
	// Registry holds the ACLs checked on every request. Nil means
	// an empty collection.
	Registry *acls.Collection
	// Providers authenticate requests, in order.
	Providers []auth.Provider
	// Prefix is the path under which every route is mounted.
	Prefix string
	// TrustedProxies are allowed to set X-Forwarded-For and X-Request-Id.
	TrustedProxies []*net.IPNet
	// Metrics receives the server's metrics. Nil creates a new one.
	Metrics *metrics.Metrics
}

// Server is a wrapper around chi router.
type Server struct {
	*chi.Mux
	Registry *acls.Collection
	Metrics  *metrics.Metrics
	prefix   string
}

// New create a new server. Routes must be added with [Server.Init] or
// [Server.AddRoute] before serving requests.
func New(options Options) *Server {
	s := &Server{
		Mux:      chi.NewRouter(),
		Registry: options.Registry,
		Metrics:  options.Metrics,
		prefix:   "/" + strings.Trim(options.Prefix, "/"),
	}
	if s.Registry == nil {
		s.Registry = acls.NewCollection()
	}
	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}
	s.Metrics.SetSecuredScopes(s.Registry.Len())

	providers := make([]auth.Provider, len(options.Providers))
	for i, p := range options.Providers {
		providers[i] = &countingProvider{Provider: p, m: s.Metrics}
	}

	s.Use(
		middleware.Recoverer,
		request.InitRequest(options.TrustedProxies...),
		Logger(),
		s.Metrics.Middleware,
		SetSecurityHeaders,
		CompressResponse,
		CannonicalPaths,
		ErrorPages,
		auth.Init(providers...),
		authz.Projector,
		s.WithACL,
	)

	return s
}

// Init adds the server's routes.
func (s *Server) Init() {
	s.AddRoute("/api/info", infoRoutes())
	s.AddRoute("/api/whoami", whoamiRoutes())
	s.AddRoute("/api/acls", s.aclRoutes())
	s.AddRoute("/metrics", s.Metrics.Handler())

	// Anything else belongs to the secured applications.
	s.AddRoute("/", appRoutes())
}

// AddRoute adds a new route to the server, prefixed with
// the server's prefix.
func (s *Server) AddRoute(pattern string, handler http.Handler) {
	s.Mount(path.Join(s.prefix, pattern), handler)
}

// AuthenticatedRouter returns a chi.Router instance
// with middlewares to force authentication.
func AuthenticatedRouter(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.Required)
	r.Use(middlewares...)

	return r
}

// infoRoutes returns the route returning the service information.
func infoRoutes() http.Handler {
	r := chi.NewRouter()

	type serviceInfo struct {
		Version string `json:"version"`
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		Render(w, r, http.StatusOK, serviceInfo{Version: configs.Version()})
	})

	return r
}

// whoamiRoutes returns the route rendering the current credentials.
func whoamiRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		Render(w, r, http.StatusOK, credentials.Get(r.Context()))
	})

	return r
}

type ruleInfo struct {
	Pattern string `json:"pattern"`
	Effect  string `json:"effect"`
	Message string `json:"message,omitempty"`
}

type aclInfo struct {
	Scope string     `json:"scope"`
	Rules []ruleInfo `json:"rules"`
}

// aclRoutes returns the route listing the registry's ACLs.
// It's only available to superusers.
func (s *Server) aclRoutes() http.Handler {
	r := AuthenticatedRouter(s.WithPredicate(authz.IsSuperuser()))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		res := []aclInfo{}
		for _, a := range s.Registry.ACLs() {
			item := aclInfo{Scope: a.Scope(), Rules: []ruleInfo{}}
			for _, rule := range a.Rules() {
				item.Rules = append(item.Rules, ruleInfo{
					Pattern: rule.Pattern,
					Effect:  rule.Effect.String(),
					Message: rule.Message,
				})
			}
			res = append(res, item)
		}

		Render(w, r, http.StatusOK, res)
	})

	return r
}

// appRoutes answers any path the registry let through.
func appRoutes() http.Handler {
	r := chi.NewRouter()

	type appResponse struct {
		Path     string  `json:"path"`
		Identity *string `json:"identity"`
	}

	r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		res := appResponse{Path: r.URL.Path}
		if c := credentials.Get(r.Context()); !c.Anonymous() {
			res.Identity = &c.Identity
		}
		Render(w, r, http.StatusOK, res)
	})

	return r
}

// routePath returns the request path relative to the server's prefix.
func (s *Server) routePath(r *http.Request) (string, bool) {
	if s.prefix == "/" {
		return r.URL.Path, true
	}
	p, ok := strings.CutPrefix(r.URL.Path, s.prefix)
	if !ok || (p != "" && p[0] != '/') {
		return "", false
	}
	return "/" + strings.TrimPrefix(p, "/"), true
}

// GetReqID returns the request ID.
func GetReqID(r *http.Request) string {
	return request.GetReqID(r)
}

// Log returns a log entry including the request ID.
func Log(r *http.Request) *slog.Logger {
	return slog.With(slog.String("@id", GetReqID(r)))
}

// countingProvider counts the authentication failures of a provider.
type countingProvider struct {
	auth.Provider
	m *metrics.Metrics
}

func (p *countingProvider) Authenticate(r *http.Request) (auth.Principal, error) {
	user, err := p.Provider.Authenticate(r)
	if err != nil {
		name := "unknown"
		if n, ok := p.Provider.(interface{ Name() string }); ok {
			name = n.Name()
		}
		p.m.AuthenticationFailed(name)
	}
	return user, err
}

func (p *countingProvider) Challenge() string {
	if c, ok := p.Provider.(auth.Challenger); ok {
		return c.Challenge()
	}
	return ""
}
