package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	gsheet "recargas/internal/sheets/google"
)

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Google Sheets mirror setup",
}

var (
	authPort      string
	authTokenFile string
)

var sheetsAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize the sync worker with a Google account",
	Long: `Runs the OAuth consent flow for the client in GOOGLE_OAUTH_CLIENT_JSON or
GOOGLE_OAUTH_CLIENT_FILE and saves the token the sync worker reads from
GOOGLE_OAUTH_TOKEN_FILE. Add http://localhost:PORT/callback to the client's
authorized redirect URIs.`,
	RunE: runSheetsAuth,
}

var sheetsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the spreadsheet is reachable with the configured credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := gsheet.NewFromEnv(cmd.Context())
		if err != nil {
			return err
		}
		if err := client.Ping(cmd.Context()); err != nil {
			return err
		}
		out.Success("Spreadsheet %s reachable", os.Getenv("GOOGLE_SPREADSHEET_ID"))
		return nil
	},
}

func init() {
	sheetsAuthCmd.Flags().StringVar(&authPort, "port", envOr("OAUTH_REDIRECT_PORT", "8085"), "local port for the OAuth redirect")
	sheetsAuthCmd.Flags().StringVar(&authTokenFile, "token-file", envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json"), "where to save the token")
	sheetsCmd.AddCommand(sheetsAuthCmd, sheetsCheckCmd)
	rootCmd.AddCommand(sheetsCmd)
}

func runSheetsAuth(cmd *cobra.Command, args []string) error {
	cfg, err := gsheet.OAuthConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.RedirectURL = "http://localhost:" + authPort + "/callback"

	ln, err := net.Listen("tcp", "localhost:"+authPort)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", authPort, err)
	}

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			codeCh <- q.Get("code")
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	out.Info("Open this URL to authorize:\n%s", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("token exchange: %w", err)
		}
		if err := gsheet.SaveToken(authTokenFile, tok); err != nil {
			return err
		}
		out.Success("Saved token to %s", authTokenFile)
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
