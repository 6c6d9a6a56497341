package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold-server/internal/config"
	"github.com/keyfold/keyfold-server/internal/store"
	"github.com/keyfold/keyfold-server/vaultservice"
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "Admin CLI for the vault backend (direct database access)",
}

// openStore builds the store from the same environment the server reads.
// Admin operations never go over the network boundary.
func openStore(ctx context.Context) (store.Store, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	return vaultservice.NewStore(ctx, cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
