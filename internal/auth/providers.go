// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package auth

import (
	"net/http"
	"strings"
)

// BasicAuthProvider authenticates requests with HTTP Basic credentials.
type BasicAuthProvider struct {
	Users Authenticator
	Realm string
}

// Name returns "basic".
func (p *BasicAuthProvider) Name() string { return "basic" }

// IsActive returns true when the request has Basic credentials.
func (p *BasicAuthProvider) IsActive(r *http.Request) bool {
	_, _, ok := r.BasicAuth()
	return ok
}

// Authenticate checks the request's username and password.
func (p *BasicAuthProvider) Authenticate(r *http.Request) (Principal, error) {
	username, password, _ := r.BasicAuth()
	return p.Users.Authenticate(r.Context(), username, password)
}

// Challenge returns the WWW-Authenticate header value.
func (p *BasicAuthProvider) Challenge() string {
	realm := p.Realm
	if realm == "" {
		realm = "authzbridge"
	}
	return `Basic realm="` + realm + `", charset="UTF-8"`
}

// HeaderProvider trusts a header, set by a reverse proxy, carrying
// the username. It must only be enabled behind such a proxy.
type HeaderProvider struct {
	Users  Authenticator
	Header string
}

// Name returns "header".
func (p *HeaderProvider) Name() string { return "header" }

// IsActive returns true when the header is present.
func (p *HeaderProvider) IsActive(r *http.Request) bool {
	return p.Header != "" && strings.TrimSpace(r.Header.Get(p.Header)) != ""
}

// Authenticate looks up the user named in the header. Inactive
// accounts are refused.
func (p *HeaderProvider) Authenticate(r *http.Request) (Principal, error) {
	user, err := p.Users.Lookup(r.Context(), strings.TrimSpace(r.Header.Get(p.Header)))
	if err != nil {
		return nil, err
	}
	if f, ok := user.(Flags); ok && !f.IsActive() {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
