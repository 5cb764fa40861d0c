package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"olive-agenda/core"
)

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "olivectl",
		Short:         "Olive agenda operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(core.NewLogger(cmd.ErrOrStderr(), logLevel))
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newCreateUserCmd())
	rootCmd.AddCommand(newBootstrapAdminCmd())
	return rootCmd
}

// withDatabase loads config and hands an open pool to fn; Ctrl-C cancels the context.
func withDatabase(cmd *cobra.Command, fn func(ctx context.Context, cfg core.Config, db *pgxpool.Pool) error) error {
	cfg, err := core.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	return fn(ctx, cfg, db)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(ctx context.Context, _ core.Config, db *pgxpool.Pool) error {
				if err := core.Migrate(ctx, db); err != nil {
					return err
				}
				slog.Info("migrations applied")
				return nil
			})
		},
	}
}

func newCreateUserCmd() *cobra.Command {
	var (
		username string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account; the password is read from the terminal or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := core.ParseRole(role)
			if err != nil {
				return errors.New("--role must be user or admin")
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return withDatabase(cmd, func(ctx context.Context, cfg core.Config, db *pgxpool.Pool) error {
				id, err := core.CreateAccount(ctx, core.NewPgUserRepository(db), username, password, r, cfg.BcryptCost)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s (id=%d, role=%s)\n", id.Username, id.ID, id.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Account username")
	cmd.Flags().StringVar(&role, "role", core.RoleUser.String(), "Account role (user, admin)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newBootstrapAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the initial admin account if no admin exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(ctx context.Context, cfg core.Config, db *pgxpool.Pool) error {
				cfg.BootstrapAdminEnabled = true
				return core.BootstrapAdmin(ctx, core.NewPgUserRepository(db), cfg, slog.Default())
			})
		},
	}
}

// readPassword prompts without echo on a terminal, otherwise reads the first line of in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
