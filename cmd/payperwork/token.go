package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/payperwork/payperwork/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a signed API token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settingsStore, err := loadSettings()
		if err != nil {
			return err
		}
		secret := settingsStore.Get().Server.AuthSecret
		if secret == "" {
			return fmt.Errorf("server.auth_secret is not set (or PAYPERWORK_AUTH_SECRET)")
		}
		fmt.Println(auth.Sign(args[0], secret))
		return nil
	},
}
