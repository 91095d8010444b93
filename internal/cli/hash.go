package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// newHashSecretCommand prints a bcrypt hash usable as CRON_SECRET, so the
// plain secret only lives with the scheduler.
func newHashSecretCommand() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-secret <secret>",
		Short: "Print a bcrypt hash of a cron secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), cost)
			if err != nil {
				return fmt.Errorf("hash secret: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
