package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/taskcrypt/internal/client"
	"github.com/TheMichaelB/taskcrypt/internal/config"
	"github.com/TheMichaelB/taskcrypt/internal/events"
)

// skipClient marks commands that run without configuration or API access.
const skipClient = "skip-client"

var (
	// Global flags
	configFile  string
	jsonOutput  bool
	logLevel    string
	password    string
	askPassword bool

	// Set up by the root command
	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "taskcrypt",
	Short: "Asana client with client-side encryption",
	Long: `taskcrypt reads and writes Asana tasks, encrypting task names, notes,
comments and attachments with a master password before they leave this
machine. Without a password everything is sent and shown as plain text.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if apiClient == nil {
			return nil
		}
		return apiClient.Close()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default: taskcrypt.json or ~/.config/taskcrypt/config.json)")
	flags.BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&password, "password", "", "Master password for encryption")
	flags.BoolVar(&askPassword, "ask-password", false, "Prompt for the master password")
}

func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipClient] == "true" {
		return nil
	}

	loader := config.NewLoader(configFile)
	if err := loader.BindFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	if err := loader.BindFlag("crypto.master_password", cmd.Flags().Lookup("password")); err != nil {
		return err
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}
	events.SetDefault(logger)

	ctx := events.WithRequestID(cmd.Context(), uuid.NewString())
	ctx = events.WithLogger(ctx, logger.WithField("command", cmd.CommandPath()))
	cmd.SetContext(ctx)

	if used := loader.ConfigFileUsed(); used != "" {
		logger.WithField("path", used).Debug("Loaded config file")
	}

	if askPassword {
		pw, err := promptPassword("Master password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cfg.Crypto.MasterPassword = pw
	}

	apiClient, err = client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	cfg.Crypto.MasterPassword = ""

	return nil
}

// requireToken fails commands that need the API when no token is set.
func requireToken() error {
	if !apiClient.Authenticated() {
		return fmt.Errorf("no access token: run \"taskcrypt login\" or set %s_API_TOKEN", config.EnvPrefix)
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return string(pw), nil
}

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("%v", err)
		}
		stop()
		memguard.SafeExit(1)
	}
}
