// Command loandocs-admin performs maintenance against the database directly:
// seeding users, toggling accounts and purging expired collaboration tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/loandocs/internal/config"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/migrate"
	"github.com/and161185/loandocs/internal/model"
	"github.com/and161185/loandocs/internal/repository"
	"github.com/and161185/loandocs/internal/repository/postgres"
	"github.com/and161185/loandocs/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// registrar is the part of service.AuthService used here.
type registrar interface {
	Register(ctx context.Context, username, password string, role model.Role) (model.User, error)
}

// tokenPurger is the part of repository.TokenRepository used here.
type tokenPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type admin struct {
	auth   registrar
	users  repository.UserRepository
	tokens tokenPurger
	now    func() time.Time
	out    io.Writer
}

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprint(w, `loandocs-admin
Usage:
  loandocs-admin <cmd> [args]

Commands:
  version
  create-user  -u <username> -p <password> [-role admin|operator]
  deactivate   -u <username>
  activate     -u <username>
  purge-tokens                                (delete expired collaboration tokens)
`)
}

// run executes one subcommand.
func (a *admin) run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case "version":
		fmt.Fprintf(a.out, "loandocs-admin %s (%s)\n", version, buildDate)
		return nil

	case "create-user":
		fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		role := fs.String("role", string(model.RoleAdmin), "admin or operator")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if *u == "" || *p == "" {
			return fmt.Errorf("%w: need -u and -p", errUsage)
		}
		user, err := a.auth.Register(ctx, *u, *p, model.Role(*role))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s %s %s\n", user.ID, user.Username, user.Role)
		return nil

	case "deactivate", "activate":
		fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		u := fs.String("u", "", "username")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if *u == "" {
			return fmt.Errorf("%w: need -u", errUsage)
		}
		user, err := a.users.GetByUsername(ctx, *u)
		if err != nil {
			return fmt.Errorf("user %q: %w", *u, err)
		}
		active := args[0] == "activate"
		if err := a.users.SetActive(ctx, user.ID, active); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s active=%t\n", user.Username, active)
		return nil

	case "purge-tokens":
		n, err := a.tokens.DeleteExpired(ctx, a.now())
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted %d expired tokens\n", n)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func fail(err error) {
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		usage(os.Stderr)
		os.Exit(2)
	case errors.Is(err, errs.ErrAlreadyExists):
		fmt.Fprintln(os.Stderr, "error: username already taken")
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}

// main connects to the configured database and dispatches a subcommand.
func main() {
	flag.Usage = func() { usage(os.Stderr) }
	flag.Parse()
	if flag.NArg() < 1 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	if cfg.DatabaseDSN == "" {
		fail(errors.New("DATABASE_DSN is required"))
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := migrate.Up(ctx, cfg.DatabaseDSN, logger); err != nil {
		fail(err)
	}
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		fail(err)
	}
	defer db.Close()

	users := postgres.NewUserRepo(db)
	a := &admin{
		// seeding runs without an acting principal, so no guard is involved
		auth:   service.NewAuthService(users, []byte(cfg.JWTSecret), cfg.AccessTTL, nil, nil),
		users:  users,
		tokens: postgres.NewTokenRepo(db),
		now:    time.Now,
		out:    os.Stdout,
	}
	if err := a.run(ctx, flag.Args()); err != nil {
		fail(err)
	}
}
