package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Serge-Moskalenko/SaaS-project/internal/client"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	serverURL string
	userID    string
	token     string
	maxSize   int64
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "voicenote",
	Short:         "Upload voice recordings for transcription",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file|dir>...",
	Short: "Transcribe audio files (directories are expanded)",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := client.ParseArgs(args, maxSize)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		return runTranscribe(cmd.Context(), c, files, cmd.OutOrStdout())
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create your account on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		created, err := c.Register(cmd.Context())
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Account %s created\n", userID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s already exists\n", userID)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show plan and remaining free uploads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		acct, err := c.Account(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Account:  %s\n", acct.IdentityKey)
		if acct.HasPaid {
			fmt.Fprintln(out, "Plan:     paid (unlimited)")
		} else {
			fmt.Fprintln(out, "Plan:     free")
		}
		fmt.Fprintf(out, "Uploads:  %d\n", acct.UploadsUsed)
		if acct.Remaining != nil {
			fmt.Fprintf(out, "Remaining free uploads: %d\n", *acct.Remaining)
		}
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Start a checkout session for the paid plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		url, err := c.Checkout(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Complete payment at:\n  %s\n", url)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverURL, "server", envOr("VOICENOTE_SERVER", "http://localhost:8080"), "server base URL")
	flags.StringVar(&userID, "user", os.Getenv("VOICENOTE_USER"), "identity key sent as X-User-Id")
	flags.StringVar(&token, "token", os.Getenv("VOICENOTE_TOKEN"), "bearer token from the identity provider")
	flags.DurationVar(&timeout, "timeout", 2*time.Minute, "per-request timeout")

	transcribeCmd.Flags().Int64Var(&maxSize, "max-size", client.DefaultMaxFileSize, "largest file to upload, in bytes")

	rootCmd.AddCommand(transcribeCmd, registerCmd, statusCmd, upgradeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if client.IsLimitExceeded(err) {
			fmt.Fprintln(os.Stderr, "Run `voicenote upgrade` to remove the free upload limit.")
		}
		os.Exit(1)
	}
}

func newClient() (*client.Client, error) {
	return client.New(serverURL, client.Options{
		UserID:  userID,
		Token:   token,
		Timeout: timeout,
	})
}

// runTranscribe uploads files in order and stops at the first failure.
func runTranscribe(ctx context.Context, c *client.Client, files []client.AudioFile, out io.Writer) error {
	for i, f := range files {
		fmt.Fprintf(out, "[%d/%d] %s (%d bytes)\n", i+1, len(files), f.Name, f.Size)

		res, err := c.Transcribe(ctx, f)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}

		fmt.Fprintf(out, "%s\n", res.Transcription)
		if res.Remaining != nil {
			fmt.Fprintf(out, "  (%d free uploads remaining)\n", *res.Remaining)
		}
	}
	fmt.Fprintf(out, "\n✓ Transcribed %d file(s)\n", len(files))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
