// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cristalhq/acmd"

	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/authz"
	"codeberg.org/readeck/authzbridge/internal/predicates"
)

// errAccessDenied is returned by the check command when the path
// is not granted.
var errAccessDenied = errors.New("access denied")

func init() {
	commands = append(commands,
		acmd.Command{
			Name:        "acls",
			Description: "List the ACL of the installed applications",
			ExecFunc:    runACLs,
		},
		acmd.Command{
			Name:        "check",
			Description: "Check whether a user can access a path",
			ExecFunc:    runCheck,
		},
	)
}

func runACLs(_ context.Context, args []string) error {
	var flags appFlags
	fs := flags.Flags()

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if err := appPreRun(&flags); err != nil {
		return err
	}

	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	list := registry.ACLs()
	if len(list) == 0 {
		fmt.Fprintf(stdout, "%sno ACL%s\n", colorYellow, colorReset) // nolint:errcheck
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for i, acl := range list {
		if i > 0 {
			fmt.Fprintln(tw) // nolint:errcheck
		}
		fmt.Fprintf(tw, "%s%s%s\n", bold, acl.Scope(), colorReset) // nolint:errcheck
		for _, r := range acl.Rules() {
			msg := ""
			if r.Message != "" {
				msg = strconv.Quote(r.Message)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", r.Effect, r.Pattern, msg) // nolint:errcheck
		}
	}
	return tw.Flush()
}

func runCheck(ctx context.Context, args []string) error {
	var username string

	var flags appFlags
	fs := flags.Flags()
	// nolint: errcheck
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: check [arguments...] PATH")
		fmt.Fprintln(fs.Output(), "  PATH")
		fmt.Fprintln(fs.Output(), "    \tpath to check")
		fs.PrintDefaults()
	}
	fs.StringVar(&username, "user", "", "username (anonymous when empty)")
	fs.StringVar(&username, "u", "", "username (shorthand)")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	p := strings.TrimSpace(fs.Arg(0))
	if p == "" {
		return errors.New("path is required")
	}

	if err := appPreRun(&flags); err != nil {
		return err
	}

	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	var user auth.Principal = auth.Anonymous{}
	if username != "" {
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close() // nolint:errcheck

		if user, err = store.Lookup(ctx, username); err != nil {
			return fmt.Errorf("user %q: %w", username, err)
		}
	}

	ctx = authz.Project(auth.WithUser(ctx, user), user)
	err = registry.Authorize(ctx, p)
	if e, ok := predicates.AsNotAuthorized(err); ok {
		fmt.Fprintf(stdout, "%sdenied%s: %s\n", colorRed, colorReset, e.Error()) // nolint:errcheck
		return errAccessDenied
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%sgranted%s\n", colorGreen, colorReset) // nolint:errcheck
	return nil
}
