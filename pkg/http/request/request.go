// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package request provides a middleware that identifies a request: its ID,
// its remote address and its client's real IP when it comes through a
// trusted reverse proxy.
package request

import (
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"codeberg.org/readeck/authzbridge/pkg/ctxr"
)

// HeaderRequestID is the header carrying a request ID set by a trusted
// proxy. The middleware sends it back in the response.
const HeaderRequestID = "X-Request-Id"

type (
	ctxRemoteIPKey  struct{}
	ctxRealIPKey    struct{}
	ctxRequestIDKey struct{}
)

var (
	// GetRemoteIP returns the request's [http.Request.RemoteAddr] as
	// a [net.IP] without its port.
	GetRemoteIP  = ctxr.Getter[net.IP](ctxRemoteIPKey{})
	withRemoteIP = ctxr.Setter[net.IP](ctxRemoteIPKey{})

	// GetRealIP returns the request's client real IP address
	// base on the "X-Forwarded-For" header. It fallbacks to [http.Request.RemoteAddr].
	GetRealIP  = ctxr.Getter[net.IP](ctxRealIPKey{})
	withRealIP = ctxr.Setter[net.IP](ctxRealIPKey{})

	checkReqID = ctxr.Checker[string](ctxRequestIDKey{})
	withReqID  = ctxr.Setter[string](ctxRequestIDKey{})
)

// GetReqID returns the request's ID, or an empty string outside of
// [InitRequest].
func GetReqID(r *http.Request) string {
	id, _ := checkReqID(r.Context())
	return id
}

// InitRequest adds the request's ID, remote address (without port) and
// real remote IP to the context.
//
// The real IP is taken from X-Forwarded-For and the ID from X-Request-Id,
// only when the request's remote address is in one of trustedProxies.
// Otherwise, the real IP is the remote address and the ID is a new UUID.
func InitRequest(trustedProxies ...*net.IPNet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Set remote IP
			remoteAddr, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				remoteAddr = r.RemoteAddr
			}
			remoteIP := net.ParseIP(remoteAddr)
			ctx = withRemoteIP(ctx, remoteIP)

			isTrusted := isTrustedProxy(trustedProxies, remoteIP)

			// Set the real remote IP
			if isTrusted {
				for _, ip := range parseXForwardedFor(r.Header) {
					if isTrustedProxy(trustedProxies, ip) {
						continue
					}
					remoteIP = ip
					break
				}
			}
			ctx = withRealIP(ctx, remoteIP)

			// Add request's ID to context
			id := ""
			if isTrusted {
				id = strings.TrimSpace(r.Header.Get(HeaderRequestID))
			}
			if id == "" {
				id = uuid.NewString()
			}
			ctx = withReqID(ctx, id)
			w.Header().Set(HeaderRequestID, id)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseXForwardedFor returns the X-Forwarded-For addresses, from the
// closest hop to the farthest one. Invalid values are skipped.
func parseXForwardedFor(h http.Header) []net.IP {
	res := []net.IP{}
	for _, v := range h.Values("X-Forwarded-For") {
		for _, s := range strings.Split(v, ",") {
			s = strings.Trim(strings.TrimSpace(s), "[]")
			if ip := net.ParseIP(s); ip != nil {
				res = append(res, ip)
			}
		}
	}
	slices.Reverse(res)
	return res
}

func isTrustedProxy(p []*net.IPNet, ip net.IP) bool {
	return slices.ContainsFunc(p, func(cidr *net.IPNet) bool {
		return cidr.Contains(ip)
	})
}

// ParseNetworks parses a list of CIDR network addresses.
func ParseNetworks(networks ...string) ([]*net.IPNet, error) {
	res := make([]*net.IPNet, len(networks))
	for i, s := range networks {
		_, cidr, err := net.ParseCIDR(s)
		if err != nil {
			return nil, err
		}
		res[i] = cidr
	}
	return res, nil
}
