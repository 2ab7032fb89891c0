package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-mirror/internal/gdrive"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize read-only access to Google Drive in the browser",
		Long: `Run the OAuth consent flow using the client secret in credentials_file and
save the resulting token to token_file. Any existing token is replaced.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authorization token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg, uuid.NewString())
	ctx := shutdownContext(cmd.Context(), logger)

	logger.Info("login started")

	if _, err := gdrive.ObtainTokenSource(ctx, gdrive.AuthOptions{
		TokenPath:       cfg.TokenFile,
		CredentialsPath: cfg.CredentialsFile,
		Scope:           cfg.Scope,
		OpenURL:         openBrowser,
		ForceLogin:      true,
		Logger:          logger,
	}); err != nil {
		return err
	}

	logger.Info("login successful")
	statusf("Login successful. Token saved to %s\n", cfg.TokenFile)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg, uuid.NewString())

	if err := gdrive.Logout(cfg.TokenFile, logger); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

// openBrowser asks the desktop to open url. The consent URL is printed as
// well, so a failure here only costs the user a copy-paste.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(context.Background(), "open", url)
	case "windows":
		cmd = exec.CommandContext(context.Background(), "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.CommandContext(context.Background(), "xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	// Reap the launcher in the background; its exit status does not matter.
	go func() { _ = cmd.Wait() }()

	return nil
}
