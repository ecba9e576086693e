package main

import (
	"fmt"

	"github.com/Rapa0/amigos-go"
	"github.com/spf13/cobra"
)

var (
	profileName        string
	profileAge         int
	profileDescription string
	profileGender      string
	profilePreference  string

	deleteConfirmed bool
)

func init() {
	profileUpdateCmd.Flags().StringVar(&profileName, "name", "", "Display name")
	profileUpdateCmd.Flags().IntVar(&profileAge, "age", 0, "Age in years")
	profileUpdateCmd.Flags().StringVar(&profileDescription, "description", "", "Profile description")
	profileUpdateCmd.Flags().StringVar(&profileGender, "gender", "", "Gender")
	profileUpdateCmd.Flags().StringVar(&profilePreference, "preference", "", "Match preference")
	profileDeleteCmd.Flags().BoolVar(&deleteConfirmed, "yes", false, "Skip the confirmation")
	profileCmd.AddCommand(profileUpdateCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the account profile",
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update profile fields",
	Long:  "Update profile fields. Only the flags you pass are changed.\nExample: amigos profile update --age 25 --description \"me gusta el cine\"",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		ctx, cancel := apiContext()
		defer cancel()

		user, err := client.UpdateProfile(ctx, amigos.ProfileUpdate{
			Name:        profileName,
			Age:         profileAge,
			Description: profileDescription,
			Gender:      profileGender,
			Preference:  profilePreference,
		})
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}

		if user.Name != "" && user.Name != cfg.Auth.Name {
			cfg.Auth.Name = user.Name
			if err := saveConfig(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
		}
		fmt.Printf("Profile updated: %s, %d\n", user.Name, user.Age)
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Permanently delete the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteConfirmed {
			return fmt.Errorf("this permanently deletes the account; re-run with --yes to confirm")
		}
		client, cfg := getClient()
		ctx, cancel := apiContext()
		defer cancel()

		if err := client.DeleteAccount(ctx); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}

		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println("Account deleted.")
		return nil
	},
}
