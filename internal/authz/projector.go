// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package authz

import (
	"context"
	"net/http"

	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/credentials"
)

// Project sets up the credentials of user in a new context.
// A nil or anonymous user gets an anonymous identity and empty groups
// and permissions.
func Project(ctx context.Context, user auth.Principal) context.Context {
	if !auth.IsAuthenticated(user) {
		ctx, _ = credentials.Setup(ctx, "", nil, nil)
		return ctx
	}

	ctx, c := credentials.Setup(ctx, user.Identity(), nil, nil)
	c.Groups = credentials.NewSet(user.Groups()...)
	c.Permissions = credentials.NewSet(user.Permissions()...)

	return ctx
}

// Projector is a middleware that projects the request's user into
// its credentials. It must run after [auth.Init].
func Projector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := Project(r.Context(), auth.GetRequestUser(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
