package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/poyrazK/authbroker/internal/core/domain"
	"github.com/poyrazK/authbroker/internal/core/ports"
	"github.com/poyrazK/authbroker/internal/infrastructure/bootstrap"
	"github.com/poyrazK/authbroker/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

// opener connects to the configured store and returns the service plus its cleanup.
type opener func(ctx context.Context) (ports.AuthIDService, func() error, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, openRuntime).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func openRuntime(ctx context.Context) (ports.AuthIDService, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := bootstrap.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return rt.Service, rt.Close, nil
}

func newRootCmd(out io.Writer, open opener) *cobra.Command {
	var (
		svc     ports.AuthIDService
		cleanup func() error
	)

	root := &cobra.Command{
		Use:          "authidctl",
		Short:        "Administer auth identifiers",
		Long:         "Issue, inspect, enable, disable and verify auth identifiers directly against the configured store.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			svc, cleanup, err = open(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if cleanup == nil {
				return nil
			}
			return cleanup()
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	var customer, label string
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new active auth id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return issueAuthID(cmd.Context(), svc, optional(cmd, "customer", customer), optional(cmd, "label", label), out)
		},
	}
	issueCmd.Flags().StringVar(&customer, "customer", "", "customer id to attach")
	issueCmd.Flags().StringVar(&label, "label", "", "free-form label")

	root.AddCommand(
		issueCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List every auth id in creation order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return listAuthIDs(cmd.Context(), svc, out)
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one auth id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rec, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printAuthID(out, rec)
				return nil
			},
		},
		&cobra.Command{
			Use:   "enable <id>",
			Short: "Mark an auth id active",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return setState(cmd.Context(), svc.Enable, args[0], out)
			},
		},
		&cobra.Command{
			Use:   "disable <id>",
			Short: "Mark an auth id inactive",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return setState(cmd.Context(), svc.Disable, args[0], out)
			},
		},
		&cobra.Command{
			Use:   "verify <id>",
			Short: "Report whether an auth id is valid",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				valid, err := svc.Verify(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s is_valid=%t\n", args[0], valid)
				return nil
			},
		},
	)
	return root
}

// optional maps an unset flag to nil so that "absent" and "blank" stay distinct.
func optional(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func issueAuthID(ctx context.Context, svc ports.AuthIDService, customer, label *string, out io.Writer) error {
	rec, err := svc.Issue(ctx, customer, label)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Auth ID Issued Successfully!\n")
	fmt.Fprintf(out, "---------------------------\n")
	printAuthID(out, rec)
	fmt.Fprintf(out, "---------------------------\n")
	return nil
}

func listAuthIDs(ctx context.Context, svc ports.AuthIDService, out io.Writer) error {
	recs, err := svc.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%-44s %-20s %-20s %-8s %s\n", "ID", "Customer", "Label", "Status", "Created")
	for _, rec := range recs {
		fmt.Fprintf(out, "%-44s %-20s %-20s %-8s %s\n",
			rec.ID, deref(rec.CustomerID), deref(rec.Label), rec.State(), rec.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func setState(ctx context.Context, apply func(context.Context, string) (*domain.AuthID, error), id string, out io.Writer) error {
	rec, err := apply(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Auth ID %s is now %s\n", rec.ID, rec.State())
	return nil
}

func printAuthID(out io.Writer, rec *domain.AuthID) {
	fmt.Fprintf(out, "ID:         %s\n", rec.ID)
	fmt.Fprintf(out, "Customer:   %s\n", deref(rec.CustomerID))
	fmt.Fprintf(out, "Label:      %s\n", deref(rec.Label))
	fmt.Fprintf(out, "Status:     %s\n", rec.State())
	fmt.Fprintf(out, "Created:    %s\n", rec.CreatedAt.Format(time.RFC3339))
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
