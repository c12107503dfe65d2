package main

import (
	"github.com/spf13/cobra"

	"github.com/creditlens/reportflow/internal/mockengine"
)

func mockEngineCMD() *cobra.Command {
	var addr string
	var cmd = &cobra.Command{
		Use:   "mock-engine",
		Short: "Run the deterministic knowledge engine for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return mockengine.NewServer().Start(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9009", "listen address")

	return cmd
}
