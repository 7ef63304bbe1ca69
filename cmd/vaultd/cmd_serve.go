package main

import (
	"github.com/spf13/cobra"

	"github.com/R3E-Network/yield_ledger/internal/app/runtime"
)

// serveCmd runs the API until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, err := runtime.NewApplication(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return application.Run(cmd.Context())
	},
}
