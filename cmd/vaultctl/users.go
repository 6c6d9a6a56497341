package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold-server/internal/services"
)

func init() {
	usersCmd := &cobra.Command{Use: "users", Short: "User operations"}

	var email, password string

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createUser(cmd.Context(), email, password, false)
		},
	}
	createCmd.Flags().StringVarP(&email, "email", "e", "", "User email (required)")
	createCmd.Flags().StringVarP(&password, "password", "p", "", "Password (required)")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("password")
	usersCmd.AddCommand(createCmd)

	var superEmail, superPassword string
	superCmd := &cobra.Command{
		Use:   "create-superuser",
		Short: "Create a superuser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createUser(cmd.Context(), superEmail, superPassword, true)
		},
	}
	superCmd.Flags().StringVarP(&superEmail, "email", "e", "", "User email (required)")
	superCmd.Flags().StringVarP(&superPassword, "password", "p", "", "Password (required)")
	_ = superCmd.MarkFlagRequired("email")
	_ = superCmd.MarkFlagRequired("password")
	usersCmd.AddCommand(superCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete EMAIL",
		Short: "Delete a user and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			u, err := st.Users().GetByEmail(cmd.Context(), services.NormalizeEmail(args[0]))
			if err != nil {
				return err
			}
			if err := st.Users().Delete(cmd.Context(), u.ID); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "deleted %s\n", u.Email)
			return nil
		},
	}
	usersCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(usersCmd)
}

func createUser(ctx context.Context, email, password string, super bool) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	svc := services.NewUserService(st)
	if super {
		u, err := svc.CreateSuperuser(ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "created superuser %s\n", u.Email)
		return nil
	}
	u, err := svc.CreateUser(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "created user %s\n", u.Email)
	return nil
}
