package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored identity and check the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()

		fmt.Printf("Logged in as: %s (%s)\n", cfg.Auth.Name, cfg.Auth.UserID)
		if cfg.Auth.Email != "" {
			fmt.Printf("Email:        %s\n", cfg.Auth.Email)
		}
		fmt.Printf("Backend:      %s\n", client.BaseURL())

		ctx, cancel := apiContext()
		defer cancel()
		reqs, err := client.Requests(ctx)
		if err != nil {
			fmt.Printf("Connectivity: unreachable (%v)\n", err)
			return nil
		}
		fmt.Printf("Connectivity: ok, %d pending request(s)\n", len(reqs))
		return nil
	},
}
