package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"skald/internal/app"
	"skald/internal/config"
)

var (
	cfgFile    string
	projectID  string
	credential string
)

var rootCmd = &cobra.Command{
	Use:   "skald",
	Short: "Skald product catalog and semantic search",
	Long: `Skald stores product catalogs per project, embeds them for semantic
search and charges every embedding against a per-project credit ledger.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	// PersistentPreRunE runs before any subcommand's RunE
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.LoadConfigFile(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		setupLogging(cfg)

		appInstance, err := app.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return nil
		}
		return appInstance.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type contextKey string

const appKey contextKey = "app"

// GetAppFromContext returns the app PersistentPreRunE stored on the command.
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func setupLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if strings.EqualFold(cfg.Log.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./config.yaml or ~/.skald/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", os.Getenv("SKALD_PROJECT"), "Project ID to act as")
	rootCmd.PersistentFlags().StringVar(&credential, "credential", os.Getenv("SKALD_CREDENTIAL"), "Credential key of the project")

	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check store, lock and embedding provider connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		fmt.Fprintf(out, "Checking %s store connectivity... ", appInstance.Config.Database.Driver)
		if err := appInstance.Store.Ping(ctx); err != nil {
			fmt.Fprintln(out, color.RedString("FAILED"))
			return fmt.Errorf("store ping failed: %w", err)
		}
		fmt.Fprintln(out, color.GreenString("ok"))

		if appInstance.JobClient != nil {
			fmt.Fprintf(out, "Redis at %s: %s\n", appInstance.Config.Redis.Address, color.GreenString("ok"))
		} else {
			fmt.Fprintf(out, "Redis: %s (asynchronous imports disabled)\n", color.YellowString("not configured"))
		}

		if appInstance.Embedder == nil {
			fmt.Fprintf(out, "Embedding provider: %s\n", color.YellowString("none"))
			return nil
		}
		status := appInstance.Embedder.Status().String()
		if status == "active" {
			status = color.GreenString(status)
		} else {
			status = color.YellowString(status)
		}
		fmt.Fprintf(out, "Embedding provider: %s (%s, %d dimensions) %s\n",
			appInstance.Embedder.Name(), appInstance.Embedder.ModelName(), appInstance.Embedder.Dimension(), status)
		return nil
	},
}
