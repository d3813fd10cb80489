package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/kvcache/internal/auth"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random API key for auth.api_keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), auth.GenerateAPIKey())
			return nil
		},
	}
}
