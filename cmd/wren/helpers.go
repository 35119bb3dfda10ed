package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	wren "github.com/wren-im/wren-go"
)

// getClient creates a Wren client from the stored configuration.
func getClient() *wren.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Server.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "No server configured. Run 'wren config set server.base_url <url>' first.")
		os.Exit(1)
	}

	client := wren.NewClient(cfg.Server.BaseURL, wren.WithLogger(cliLogger()))
	if cfg.Auth.UserID != "" {
		client.SetCredentials(wren.Credentials{UserID: cfg.Auth.UserID, Username: cfg.Auth.Username})
	}
	return client
}

// getCredentials returns the stored identity or exits with a hint.
func getCredentials() wren.Credentials {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.UserID == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'wren login <username>' first.")
		os.Exit(1)
	}
	return wren.Credentials{UserID: cfg.Auth.UserID, Username: cfg.Auth.Username}
}

// cliLogger returns a console logger on stderr, silenced unless
// --verbose was given.
func cliLogger() zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
