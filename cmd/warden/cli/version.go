package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

// Version is overridden at build time via -ldflags.
var Version = "v0.1.0-dev"

func newVersionCmd() *cobra.Command {
	var check string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the warden version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "warden %s\n", Version)
			if check == "" {
				return nil
			}
			if !semver.IsValid(check) {
				return fmt.Errorf("invalid semver %q", check)
			}
			if semver.Compare(check, Version) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "newer version available: %s\n", check)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "up to date")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&check, "check", "", "compare against a published version")
	return cmd
}
