package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Rapa0/amigos-go"
	"github.com/spf13/cobra"
)

func init() {
	requestsCmd.AddCommand(requestsAcceptCmd)
	requestsCmd.AddCommand(requestsRejectCmd)
	rootCmd.AddCommand(matchesCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(unmatchCmd)
	rootCmd.AddCommand(requestsCmd)
}

func apiContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List your matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()
		ctx, cancel := apiContext()
		defer cancel()

		users, err := client.Matches(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch matches: %w", err)
		}
		if len(users) == 0 {
			fmt.Println("No matches yet.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%s  %s\n", u.ID, u.Name)
		}
		return nil
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List profiles you can like",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()
		ctx, cancel := apiContext()
		defer cancel()

		users, err := client.Candidates(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch candidates: %w", err)
		}
		if len(users) == 0 {
			fmt.Println("No candidates right now.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%s  %s\n", u.ID, u.Name)
		}
		return nil
	},
}

var likeCmd = &cobra.Command{
	Use:   "like <user-id>",
	Short: "Send a like to a candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()
		ctx, cancel := apiContext()
		defer cancel()

		if err := client.Like(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to send like: %w", err)
		}
		fmt.Println("Like sent.")
		return nil
	},
}

var unmatchCmd = &cobra.Command{
	Use:   "unmatch <user-id>",
	Short: "Dissolve a match and its conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()
		ctx, cancel := apiContext()
		defer cancel()

		if err := client.Unmatch(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to unmatch: %w", err)
		}
		fmt.Println("Match removed.")
		return nil
	},
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List pending match requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()
		ctx, cancel := apiContext()
		defer cancel()

		reqs, err := client.Requests(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch requests: %w", err)
		}
		if len(reqs) == 0 {
			fmt.Println("No pending requests.")
			return nil
		}
		for _, r := range reqs {
			fmt.Printf("%s  %s\n", r.ID, r.Name)
		}
		return nil
	},
}

var requestsAcceptCmd = &cobra.Command{
	Use:   "accept <user-id>",
	Short: "Accept a match request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return respondToRequest(args[0], amigos.ActionAccept)
	},
}

var requestsRejectCmd = &cobra.Command{
	Use:   "reject <user-id>",
	Short: "Reject a match request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return respondToRequest(args[0], amigos.ActionReject)
	},
}

func respondToRequest(candidateID, action string) error {
	client, _ := getClient()
	ctx, cancel := apiContext()
	defer cancel()

	if err := client.Respond(ctx, candidateID, action); err != nil {
		return fmt.Errorf("failed to respond to request: %w", err)
	}
	fmt.Println("Done.")
	return nil
}
