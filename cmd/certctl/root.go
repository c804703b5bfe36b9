package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	outputFmt  string
	adminToken string
)

var rootCmd = &cobra.Command{
	Use:   "certctl",
	Short: "CLI for the certledger credential service",
	Long: `certctl talks to a certledger server and exposes the offline
derivations the server uses: asset names, policy ids and metadata chunking.

Offline commands (asset-name, policy-id, chunk, metadata) need no server.
verify and credentials call the HTTP API; migrate and events reach Postgres
and Kafka directly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CERTLEDGER_SERVER", "http://localhost:8080"), "certledger server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token", os.Getenv("ADMIN_API_TOKEN"), "Issuer API token (default: from ADMIN_API_TOKEN env)")

	rootCmd.AddCommand(assetNameCmd)
	rootCmd.AddCommand(policyIDCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(eventsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
