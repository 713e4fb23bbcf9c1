// resetctl: консольный клиент ручки сброса пароля (проверка окружений, поддержка).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"skinvault/internal/resetclient"

	"github.com/spf13/cobra"
)

type options struct {
	endpoint string
	timeout  time.Duration
	dev      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "resetctl",
		Short:         "SkinVault password reset client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "http://localhost:8080/api/password-reset", "password reset endpoint")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&opts.dev, "dev", false, "do not call the server, fabricate successful responses")

	root.AddCommand(newRequestCmd(opts), newValidateCmd(opts), newResetCmd(opts))
	return root
}

func (o *options) client() *resetclient.Client {
	if o.dev {
		return resetclient.New(resetclient.NewDevTransport())
	}
	return resetclient.New(resetclient.NewHTTPTransport(o.endpoint, o.timeout))
}

func printResult(cmd *cobra.Command, res *resetclient.Result) error {
	if !res.Success {
		for _, p := range res.Problems {
			fmt.Fprintln(cmd.ErrOrStderr(), " -", p)
		}
		if res.RateLimited {
			fmt.Fprintln(cmd.ErrOrStderr(), "rate limited, retry later")
		}
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func newRequestCmd(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Send a password reset email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printResult(cmd, opts.client().RequestPasswordReset(context.Background(), email))
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newValidateCmd(opts *options) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether a reset token is still usable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := opts.client().ValidateToken(context.Background(), token)
			if !res.Valid {
				return fmt.Errorf("%s", res.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid, user %s\n", res.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "reset token from the email link")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newResetCmd(opts *options) *cobra.Command {
	var token, password string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password using a reset token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printResult(cmd, opts.client().ResetPassword(context.Background(), token, password))
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "reset token from the email link")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
