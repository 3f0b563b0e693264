// Package main is the one-shot provisioning CLI. It performs the same run
// the portal does, authenticated with operator credentials from flags or
// environment, and prints the audit trail to stdout.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudidm/onboard/internal/config"
	"github.com/cloudidm/onboard/internal/identity"
	"github.com/cloudidm/onboard/internal/provision"
	"github.com/cloudidm/onboard/pkg/logger"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		email    string
		project  string
		username string
		password string
		contract string
		region   string
		retries  int
		delay    time.Duration
	)

	cmd := &cobra.Command{
		Use:           "onboardctl",
		Short:         "Provision a user into the identity backend",
		Long:          "Logs in with operator credentials, then creates the user, the default-project membership, the project, its admin group and the role bindings in one pass.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger.Init(os.Getenv("LOG_LEVEL"))

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// precedence: flag > environment > configured default
			username = fallback(cmd, "username", username, "ONBOARD_USERNAME", "")
			password = fallback(cmd, "password", password, "ONBOARD_PASSWORD", "")
			contract = fallback(cmd, "contract", contract, "ONBOARD_CONTRACT", cfg.Contract.Name)
			region = fallback(cmd, "region", region, "ONBOARD_REGION", cfg.Contract.Region)
			if username == "" || password == "" {
				return fmt.Errorf("operator credentials required (--username/--password or ONBOARD_USERNAME/ONBOARD_PASSWORD)")
			}
			if contract == "" || region == "" {
				return fmt.Errorf("contract and region required (--contract/--region or configuration)")
			}
			if !cmd.Flags().Changed("retries") {
				retries = cfg.Provision.SyncRetries
			}
			if !cmd.Flags().Changed("delay") {
				delay = cfg.Provision.SyncDelay
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			ep := identity.EndpointsFor(cfg.Identity, region)
			hc := &http.Client{Timeout: cfg.Identity.RequestTimeout}
			auth, err := identity.NewAuthenticator(ep, hc).Login(ctx, identity.Credentials{
				Username: username,
				Password: password,
				Contract: contract,
				Region:   region,
			})
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			gw := identity.NewClient(ep, auth.DomainID, identity.TokenSet{
				Regional: auth.RegionalToken,
				Global:   auth.GlobalToken,
				Central:  auth.CentralToken,
			}, hc)
			orch := provision.NewOrchestrator(gw, contract).
				WithRoles(cfg.Provision.MemberRole, cfg.Provision.AdminRole).
				WithRetryPolicy(retries, delay)

			out := orch.Run(ctx, email, project)
			printOutcome(cmd, out)
			if out.Status != provision.StatusSuccess {
				return fmt.Errorf("provisioning failed: %s", out.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email of the person to provision (required)")
	cmd.Flags().StringVar(&project, "project", "", "project to attach the user to, created when missing (required)")
	cmd.Flags().StringVar(&username, "username", "", "operator account name")
	cmd.Flags().StringVar(&password, "password", "", "operator account password")
	cmd.Flags().StringVar(&contract, "contract", "", "contract (domain) name")
	cmd.Flags().StringVar(&region, "region", "", "region label")
	cmd.Flags().IntVar(&retries, "retries", provision.DefaultSyncRetries, "replication-lag retries per bind")
	cmd.Flags().DurationVar(&delay, "delay", provision.DefaultSyncDelay, "pause before each replication-lag retry")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

// fallback resolves a string setting with flag > env > default precedence.
func fallback(cmd *cobra.Command, flag, current, env, def string) string {
	if cmd.Flags().Changed(flag) {
		return current
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	if def != "" {
		return def
	}
	return current
}

func printOutcome(cmd *cobra.Command, out provision.Outcome) {
	w := cmd.OutOrStdout()
	for _, rec := range out.Trail {
		if rec.Attempt > 1 {
			fmt.Fprintf(w, "%s  %s (attempt %d)\n", rec.At.Format(time.RFC3339), rec.Label, rec.Attempt)
			continue
		}
		fmt.Fprintf(w, "%s  %s\n", rec.At.Format(time.RFC3339), rec.Label)
	}
	fmt.Fprintf(w, "\nstatus:   %s\n", out.Status)
	if out.Reason != provision.ReasonNone {
		fmt.Fprintf(w, "reason:   %s\n", out.Reason)
	}
	fmt.Fprintf(w, "username: %s\n", out.Subject.Username)
	if out.Project != "" {
		fmt.Fprintf(w, "project:  %s\n", out.Project)
	}
	if out.Subject.Password != "" {
		fmt.Fprintf(w, "password: %s (displayed once, not stored)\n", out.Subject.Password)
	}
}
