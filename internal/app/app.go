// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package app contains the command line application.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cristalhq/acmd"
	"github.com/doug-martin/goqu/v9"

	"codeberg.org/readeck/authzbridge/configs"
	"codeberg.org/readeck/authzbridge/internal/acls"
	"codeberg.org/readeck/authzbridge/internal/auth"
	"codeberg.org/readeck/authzbridge/internal/auth/users"
	"codeberg.org/readeck/authzbridge/internal/authz"
	"codeberg.org/readeck/authzbridge/internal/db"
)

const (
	bold        = "\033[1m"
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

var commands = []acmd.Command{}

// stdout receives the commands' output.
var stdout io.Writer = os.Stdout

// Run starts the application's command runner.
func Run() error {
	return runCommand(context.Background(), os.Args[1:])
}

func runCommand(ctx context.Context, args []string) error {
	r := acmd.RunnerOf(commands, acmd.Config{
		AppName:        "authzbridge",
		AppDescription: "Path based authorization for web applications",
		Version:        configs.Version(),
		Context:        ctx,
		Args:           args,
		Output:         stdout,
	})
	return r.Run()
}

type appFlags struct {
	ConfigFile string
}

// Flags returns a [flag.FlagSet] with the flags shared by every command.
func (f *appFlags) Flags() *flag.FlagSet {
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&f.ConfigFile, "config", "", "configuration file path")
	return fs
}

type stringsFlag []string

func (s *stringsFlag) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringsFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// parseFlags parses args. It returns false when the command
// must stop, after printing its help.
func parseFlags(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// appPreRun loads the configuration and sets the default logger.
func appPreRun(flags *appFlags) error {
	if err := configs.Load(flags.ConfigFile); err != nil {
		return err
	}
	setLogger(os.Stderr)
	return nil
}

// loadPolicy reads the group policy file, when there is one.
func loadPolicy() (acls.Policy, error) {
	name := configs.Config.Users.PolicyFile
	if name == "" {
		return nil, nil
	}

	fd, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer fd.Close() // nolint:errcheck

	policy, err := acls.LoadPolicy(fd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return policy, nil
}

// userStore is the configured user store and its optional database.
type userStore struct {
	auth.Authenticator
	db *goqu.Database
}

func (s *userStore) Close() error {
	if s.db == nil {
		return nil
	}
	return db.Close(s.db)
}

// openStore opens the configured user store. The database takes
// precedence over the user file.
func openStore(ctx context.Context) (*userStore, error) {
	policy, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	cf := configs.Config.Users
	switch {
	case cf.Database != "":
		database, err := db.Open(cf.Database)
		if err != nil {
			return nil, err
		}
		if err = db.Init(ctx, database); err != nil {
			db.Close(database) // nolint:errcheck
			return nil, err
		}
		slog.Debug("user database ready", slog.String("dialect", database.Dialect()))
		return &userStore{users.NewSQLStore(database, policy), database}, nil
	case cf.File != "":
		s, err := users.LoadFile(cf.File, policy)
		if err != nil {
			return nil, err
		}
		slog.Debug("user file loaded", slog.Int("users", len(s.Usernames())))
		return &userStore{Authenticator: s}, nil
	}

	return nil, errors.New("no user store: users.file or users.database must be set")
}

// buildRegistry collects the ACL of every installed application
// and freezes the resulting collection.
func buildRegistry() (*acls.Collection, error) {
	cf := configs.Config.Authz

	options := []acls.Option{}
	if cf.DenyByDefault {
		options = append(options, acls.DenyByDefault(cf.DenyMessage))
	}

	b := &authz.Builder{
		Registry: acls.NewCollection(options...),
		Provider: authz.DirProvider{
			Root:       cf.DeclarationsDir,
			Predicates: authz.NamedPredicates(),
		},
		Logger: slog.Default(),
	}

	registry, err := b.Build(cf.InstalledApps)
	if err != nil {
		return nil, err
	}
	registry.Freeze()
	return registry, nil
}
