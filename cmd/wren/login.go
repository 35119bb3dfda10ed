package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	wren "github.com/wren-im/wren-go"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
}

// promptPassword reads a password without echoing it.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("cannot read password: %w", err)
	}
	return string(pw), nil
}

func storeCredentials(creds wren.Credentials) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Auth.UserID = creds.UserID
	cfg.Auth.Username = creds.Username
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Log in and store credentials in ~/.wren/config.toml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		client := getClient()

		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		creds, err := client.Login(ctx, username, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if err := storeCredentials(creds); err != nil {
			return err
		}

		fmt.Printf("Logged in as %s (%s)\n", creds.Username, creds.UserID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		client := getClient()

		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		creds, err := client.Register(ctx, username, password)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		if err := storeCredentials(creds); err != nil {
			return err
		}

		fmt.Printf("Registered as %s (%s)\n", creds.Username, creds.UserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Auth = ConfigAuth{}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}
