package main

import (
	"github.com/spf13/cobra"

	"github.com/prn-tf/showcase-portal/internal/pkg/crypto"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Generate a random admin token for auth.admin_token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := crypto.GenerateAdminToken()
			if err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "%s\n", token)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writePlain(cmd.OutOrStdout(),
				"Showcase Admin CLI\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n",
				Version, BuildTime, GitCommit)
		},
	}
}
