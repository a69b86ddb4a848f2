// SPDX-FileCopyrightText: © 2021 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"net/http"
)

// securityHeaders are set on every response. Responses only carry
// JSON or plain text, nothing is ever framed, embedded or cached.
var securityHeaders = [][2]string{
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "same-origin, strict-origin"},
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Robots-Tag", "noindex, nofollow, noarchive"},
	{"Cache-Control", "no-store"},
}

// SetSecurityHeaders adds the security headers to the response. Since
// a response depends on the request's credentials, it varies on the
// Authorization header.
func SetSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range securityHeaders {
			w.Header().Set(h[0], h[1])
		}
		w.Header().Add("Vary", "Authorization")

		next.ServeHTTP(w, r)
	})
}
