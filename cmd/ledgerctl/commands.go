package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"investledger/internal/catalog"
	"investledger/internal/db"
	"investledger/internal/middleware"
	"investledger/internal/models"
	"investledger/internal/projection"
	"investledger/internal/services"
	"investledger/internal/store"
)

type balanceReader interface {
	GetBalance(ctx context.Context, ownerID string) (models.Balance, error)
	GetBalanceAsOf(ctx context.Context, ownerID string, asOf time.Time) (models.Balance, error)
}

type maturityCompleter interface {
	CompleteMatured(ctx context.Context) (int64, error)
}

type withdrawalResolver interface {
	ResolveWithdrawal(ctx context.Context, req services.ResolveRequest) (services.ResolveResult, error)
}

type planImporter interface {
	ImportPlans(ctx context.Context, plans []models.Plan, actorID string) (int, error)
}

type projector interface {
	ProjectReturns(ctx context.Context, ownerID string, horizonMonths int) ([]projection.Point, error)
}

type adminWriter interface {
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role, grantedBy string) error
	Roles(ctx context.Context, userID string) ([]string, error)
}

type backend struct {
	balances    balanceReader
	investments maturityCompleter
	withdrawals withdrawalResolver
	plans       planImporter
	reporting   projector
	admins      adminWriter
	txRunner    db.TxRunner
}

type opener func() (*backend, func(), error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Operate the investment ledger",
		Long:         "Administrative commands for the investment ledger.",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("actor", "ledgerctl", "Actor id recorded in the audit log")

	plans := &cobra.Command{Use: "plans", Short: "Manage the plan catalog"}
	plans.AddCommand(plansImportCmd(open))

	admins := &cobra.Command{Use: "admins", Short: "Manage administrators"}
	admins.AddCommand(adminsAddCmd(open), adminsGrantCmd(open), adminsRolesCmd(open))

	root.AddCommand(balanceCmd(open), sweepCmd(open), resolveCmd(open), projectCmd(open), plans, admins)
	return root
}

// withBackend opens the backend for the duration of fn.
func withBackend(open opener, fn func(b *backend) error) error {
	b, closeFn, err := open()
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer closeFn()
	return fn(b)
}

func printJSON(cmd *cobra.Command, payload any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func actor(cmd *cobra.Command) string {
	value, _ := cmd.Flags().GetString("actor")
	return value
}

func balanceCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance [owner-id]",
		Short: "Reconcile and print an owner's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asOfRaw, _ := cmd.Flags().GetString("as-of")
			var asOf time.Time
			if asOfRaw != "" {
				parsed, err := time.Parse(time.RFC3339, asOfRaw)
				if err != nil {
					return fmt.Errorf("invalid --as-of %q: %w", asOfRaw, err)
				}
				asOf = parsed
			}
			return withBackend(open, func(b *backend) error {
				var (
					balance models.Balance
					err     error
				)
				if asOf.IsZero() {
					balance, err = b.balances.GetBalance(cmd.Context(), args[0])
				} else {
					balance, err = b.balances.GetBalanceAsOf(cmd.Context(), args[0], asOf)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, balance)
			})
		},
	}
	cmd.Flags().String("as-of", "", "Reconcile at this RFC3339 instant instead of now")
	return cmd
}

func sweepCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete every matured investment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(open, func(b *backend) error {
				completed, err := b.investments.CompleteMatured(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "completed %d investments\n", completed)
				return nil
			})
		},
	}
}

func resolveCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [request-id] [settled|rejected]",
		Short: "Settle or reject a pending withdrawal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome := models.WithdrawalStatus(args[1])
			if _, ok := outcome.ResolutionKind(); !ok {
				return fmt.Errorf("outcome must be settled or rejected, got %q", args[1])
			}
			note, _ := cmd.Flags().GetString("note")
			return withBackend(open, func(b *backend) error {
				result, err := b.withdrawals.ResolveWithdrawal(cmd.Context(), services.ResolveRequest{
					RequestID: args[0],
					Outcome:   outcome,
					ActorID:   actor(cmd),
					Note:      note,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().String("note", "", "Note stored on the resolution event")
	return cmd
}

func projectCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project [owner-id]",
		Short: "Project monthly returns for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			months, _ := cmd.Flags().GetInt("months")
			return withBackend(open, func(b *backend) error {
				points, err := b.reporting.ProjectReturns(cmd.Context(), args[0], months)
				if err != nil {
					return err
				}
				return printJSON(cmd, points)
			})
		},
	}
	cmd.Flags().Int("months", 12, "Projection horizon in 30-day months")
	return cmd
}

func plansImportCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Upsert every plan in a YAML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}
			return withBackend(open, func(b *backend) error {
				count, err := b.plans.ImportPlans(cmd.Context(), plans, actor(cmd))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d plans\n", count)
				return nil
			})
		},
	}
}

func adminsAddCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [user-id]",
		Short: "Register an administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			super, _ := cmd.Flags().GetBool("super")
			return withBackend(open, func(b *backend) error {
				err := b.txRunner.WithTx(cmd.Context(), func(tx *sqlx.Tx) error {
					return b.admins.CreateAdmin(cmd.Context(), tx, args[0], super, actor(cmd))
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s added (super: %t)\n", args[0], super)
				return nil
			})
		},
	}
	cmd.Flags().Bool("super", false, "Grant super admin")
	return cmd
}

func adminsGrantCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "grant [user-id] [role]",
		Short: "Grant a role to an administrator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !middleware.ValidRole(args[1]) {
				return fmt.Errorf("unknown role %q, expected one of %v", args[1], middleware.Roles)
			}
			return withBackend(open, func(b *backend) error {
				err := b.txRunner.WithTx(cmd.Context(), func(tx *sqlx.Tx) error {
					return b.admins.GrantRole(cmd.Context(), tx, args[0], args[1], actor(cmd))
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", args[1], args[0])
				return nil
			})
		},
	}
}

func adminsRolesCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "roles [user-id]",
		Short: "List the roles granted to an administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(open, func(b *backend) error {
				roles, err := b.admins.Roles(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if roles == nil {
					roles = []string{}
				}
				return printJSON(cmd, roles)
			})
		},
	}
}
