// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cristalhq/acmd"
	"golang.org/x/term"

	"codeberg.org/readeck/authzbridge/internal/auth/users"
	"codeberg.org/readeck/authzbridge/internal/db/scanner"
)

// stdin is where passwords are read from.
var stdin io.Reader = os.Stdin

func init() {
	commands = append(commands,
		acmd.Command{
			Name:        "users",
			Description: "List users, their groups and permissions",
			ExecFunc:    runUsers,
		},
		acmd.Command{
			Name:        "useradd",
			Description: "Create a user in the user database",
			ExecFunc:    runUserAdd,
		},
		acmd.Command{
			Name:        "import-users",
			Description: "Import users from a YAML or CSV file into the user database",
			ExecFunc:    runImportUsers,
		},
		acmd.Command{
			Name:        "hash-password",
			Description: "Print the hash of a password, for a user file",
			ExecFunc:    runHashPassword,
		},
	)
}

func runUsers(ctx context.Context, args []string) error {
	var group string
	var listGroups bool

	var flags appFlags
	fs := flags.Flags()
	fs.StringVar(&group, "group", "", "only list the members of this group")
	fs.StringVar(&group, "g", "", "group (shorthand)")
	fs.BoolVar(&listGroups, "groups", false, "list group names instead of users")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if err := appPreRun(&flags); err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close() // nolint:errcheck

	var list []*users.User
	var groups []string

	switch s := store.Authenticator.(type) {
	case *users.SQLStore:
		if listGroups {
			groups, err = s.GroupNames(ctx)
		} else if group != "" {
			list, err = scanner.Collect(s.ListGroup(ctx, group))
		} else {
			list, err = scanner.Collect(s.List(ctx))
		}
		if err != nil {
			return err
		}
	case *users.MemStore:
		groups = s.GroupNames()
		list = s.List(group)
	}

	if listGroups {
		for _, g := range groups {
			fmt.Fprintln(stdout, g) // nolint:errcheck
		}
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tFLAGS\tGROUPS\tPERMISSIONS") // nolint:errcheck
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", // nolint:errcheck
			u.Username, userFlags(u),
			strings.Join(u.Groups(), ","), strings.Join(u.Permissions(), ","),
		)
	}
	return tw.Flush()
}

func userFlags(u *users.User) string {
	res := []string{}
	if !u.IsActive() {
		res = append(res, "inactive")
	}
	if u.IsStaff() {
		res = append(res, "staff")
	}
	if u.IsSuperuser() {
		res = append(res, "superuser")
	}
	if len(res) == 0 {
		return "-"
	}
	return strings.Join(res, ",")
}

func runUserAdd(ctx context.Context, args []string) error {
	var groups, permissions stringsFlag
	u := &users.User{Active: true}

	var flags appFlags
	fs := flags.Flags()
	// nolint: errcheck
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: useradd [arguments...] USERNAME")
		fs.PrintDefaults()
	}
	fs.Var(&groups, "group", "group name, can be repeated")
	fs.Var(&groups, "g", "group name (shorthand)")
	fs.Var(&permissions, "permission", "permission, can be repeated")
	fs.Var(&permissions, "p", "permission (shorthand)")
	fs.BoolVar(&u.Staff, "staff", false, "the user belongs to the staff")
	fs.BoolVar(&u.Superuser, "superuser", false, "the user is a superuser")

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	u.Username = strings.TrimSpace(fs.Arg(0))
	if u.Username == "" {
		return errors.New("username is required")
	}
	u.GroupNames = []string(groups)
	u.Grants = []string(permissions)

	if err := appPreRun(&flags); err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close() // nolint:errcheck

	s, ok := store.Authenticator.(*users.SQLStore)
	if !ok {
		return errors.New("useradd needs a user database (users.database)")
	}

	password, err := readPassword()
	if err != nil {
		return err
	}
	if err = u.SetPassword(password); err != nil {
		return err
	}
	if err = s.Create(ctx, u); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%suser %s created%s\n", colorGreen, u.Username, colorReset) // nolint:errcheck
	return nil
}

func runImportUsers(ctx context.Context, args []string) error {
	var flags appFlags
	fs := flags.Flags()
	// nolint: errcheck
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: import-users [arguments...] FILE")
		fmt.Fprintln(fs.Output(), "  FILE")
		fmt.Fprintln(fs.Output(), "    \tsource file (.yaml or .csv)")
		fs.PrintDefaults()
	}

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	src := strings.TrimSpace(fs.Arg(0))
	if src == "" {
		return errors.New("input file is required")
	}

	if err := appPreRun(&flags); err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close() // nolint:errcheck

	s, ok := store.Authenticator.(*users.SQLStore)
	if !ok {
		return errors.New("import-users needs a user database (users.database)")
	}

	// The file is read as a store first, so it's fully checked before
	// anything is written.
	source, err := users.LoadFile(src, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%sstarting import%s...\n", colorYellow, colorReset) // nolint:errcheck
	for _, u := range source.List("") {
		if err = s.Create(ctx, u); err != nil {
			return fmt.Errorf("user %s: %w", u.Username, err)
		}
		fmt.Fprintf(stdout, "  - %s\n", u.Username) // nolint:errcheck
	}
	fmt.Fprintf(stdout, "%s%simport done!%s\n", bold, colorGreen, colorReset) // nolint:errcheck

	return nil
}

func runHashPassword(_ context.Context, args []string) error {
	var flags appFlags
	fs := flags.Flags()

	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	password, err := readPassword()
	if err != nil {
		return err
	}
	h, err := users.HashPassword(password)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, h) // nolint:errcheck
	return nil
}

// readPassword prompts for a password on a terminal, with
// confirmation, or reads the first line of a non terminal input.
func readPassword() (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		prompt := func(label string) (string, error) {
			fmt.Fprintf(os.Stderr, "%s%s:%s ", bold, label, colorReset) // nolint:errcheck
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(os.Stderr) // nolint:errcheck
			return string(b), err
		}

		password, err := prompt("Password")
		if err != nil {
			return "", err
		}
		confirm, err := prompt("Confirm password")
		if err != nil {
			return "", err
		}
		if password != confirm {
			return "", errors.New("passwords do not match")
		}
		return password, nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
