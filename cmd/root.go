// Package cmd provides the CLI for the legal search agent.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "normgraph",
	Short: "Normgraph - federated legal norm search",
	Long:  `Normgraph searches a graph of legal norms with hybrid retrieval and federates queries across domain agents.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
}

func Execute() error {
	return rootCmd.Execute()
}
