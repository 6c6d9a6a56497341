package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	sessionsCmd := &cobra.Command{Use: "sessions", Short: "Session maintenance"}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := st.Sessions().DeleteExpired(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "purged %d expired sessions\n", n)
			return nil
		},
	}
	sessionsCmd.AddCommand(purgeCmd)

	rootCmd.AddCommand(sessionsCmd)
}
