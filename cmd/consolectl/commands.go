package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/backoffice/internal/config"
	"github.com/geocoder89/backoffice/internal/db"
	"github.com/geocoder89/backoffice/internal/domain/user"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/repo/postgres"
	"github.com/geocoder89/backoffice/internal/security"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

type app struct {
	cfg     config.Config
	log     *slog.Logger
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "consolectl",
		Short:         "Maintenance tasks for the back-office console",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.cfg = config.Load()
			a.log = observability.NewLogger(a.cfg.Env)
		},
	}
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(
		a.migrateCmd(),
		a.seedAdminCmd(),
		a.createUserCmd(),
		a.pruneTokensCmd(),
	)
	return root
}

// withPool opens the database for the duration of fn.
func (a *app) withPool(cmd *cobra.Command, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, a.cfg.DBURL, 2)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool)
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				applied, err := db.Migrate(ctx, pool, a.log)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					cmd.Println("schema is up to date")
					return nil
				}
				for _, v := range applied {
					cmd.Println("applied", v)
				}
				return nil
			})
		},
	}
}

func (a *app) seedAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the admin from ADMIN_EMAIL and ADMIN_PASSWORD if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				created, err := db.EnsureAdminUser(ctx, postgres.NewUsersRepo(pool, nil), a.cfg)
				if err != nil {
					return err
				}
				if created {
					cmd.Println("admin created:", a.cfg.AdminEmail)
				} else {
					cmd.Println("admin already exists:", a.cfg.AdminEmail)
				}
				return nil
			})
		},
	}
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}()

func (a *app) createUserCmd() *cobra.Command {
	var req user.CreateUserRequest
	var role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a staff or admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = user.Role(role)
			if err := validate.Struct(req); err != nil {
				return describeValidation(err)
			}

			hash, err := security.HashPassword(req.Password)
			if err != nil {
				return err
			}

			return a.withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				u, err := postgres.NewUsersRepo(pool, nil).Create(ctx, user.NewFromCreateRequest(req, hash))
				if err != nil {
					if errors.Is(err, user.ErrEmailTaken) {
						return fmt.Errorf("%s is already registered", req.Email)
					}
					return err
				}
				cmd.Printf("created %s %s (%s)\n", u.Role, u.Email, u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Login email")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", string(user.RoleStaff), "admin or staff")
	cmd.Flags().StringVar(&req.Password, "password", "", "Initial password (min 8 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func (a *app) pruneTokensCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune-tokens",
		Short: "Delete refresh tokens that expired or were revoked before --older-than ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withPool(cmd, func(ctx context.Context, pool *pgxpool.Pool) error {
				n, err := postgres.NewRefreshTokensRepo(pool, nil).DeleteStale(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				cmd.Printf("deleted %d refresh tokens\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Grace period after expiry or revocation")

	return cmd
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := verrs[0]
	return fmt.Errorf("invalid --%s: failed %q", flagName(fe.Field()), fe.Tag())
}

func flagName(field string) string {
	switch field {
	case "Email":
		return "email"
	case "Password":
		return "password"
	case "Name":
		return "name"
	case "Role":
		return "role"
	}
	return field
}
