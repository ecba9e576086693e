package main

import (
	"fmt"
	"os"

	amigos "github.com/Rapa0/amigos-go"
)

// clientOptions builds SDK options from the stored config.
func clientOptions(cfg *Config) []amigos.ClientOption {
	var opts []amigos.ClientOption
	if cfg.API.BaseURL != "" {
		opts = append(opts, amigos.WithBaseURL(cfg.API.BaseURL))
	}
	return opts
}

// getClient creates a client authenticated with the stored token.
func getClient() (*amigos.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'amigos login <email>' first.")
		os.Exit(1)
	}
	return amigos.NewClient(cfg.Auth.Token, clientOptions(cfg)...), cfg
}

// getAnonClient creates an unauthenticated client (login, register).
func getAnonClient() (*amigos.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return amigos.NewClient("", clientOptions(cfg)...), cfg
}
