package cmd

import (
	"fmt"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"skald/internal/apihandlers"
)

var (
	serveAddr string // Listen address
	servePort string // Listen port
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run Skald as an HTTP API server",
	Long: `Starts an HTTP server exposing products, search and account endpoints
under /api/v1. Callers identify themselves with the X-Project-ID and
X-Credential-Key headers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg := appInstance.Config

		if !cmd.Flags().Changed("addr") {
			serveAddr = cfg.Server.Addr
		}
		if !cmd.Flags().Changed("port") {
			servePort = cfg.Server.Port
		}

		if log.GetLevel() < log.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.Default() // Includes logger and recovery middleware
		apihandlers.RegisterRoutes(router, apihandlers.NewAPIHandler(appInstance))

		listenAddr := fmt.Sprintf("%s:%s", serveAddr, servePort)
		log.WithFields(log.Fields{
			"addr":      listenAddr,
			"store":     cfg.Database.Driver,
			"embedding": cfg.Embedding.Provider,
			"async":     appInstance.JobClient != nil,
		}).Info("Starting Skald API server")

		// router.Run blocks unless an error occurs
		if err := router.Run(listenAddr); err != nil {
			log.WithError(err).Error("Failed to run API server")
			return fmt.Errorf("failed to run API server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost", "Address to listen on (e.g., '0.0.0.0' for all interfaces)")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")
}
