// Package main provides the hexprox-cli command-line tool for validating
// proxy configuration and provisioning credential-set documents in the
// secret store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "hexprox-cli",
	Short: "HexProx operator tool",
	Long: `hexprox-cli manages a HexProx deployment: it validates proxy
configuration files and provisions credential-set documents in the
configured secret store.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("HEXPROX_CONFIG"), "config file path")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(versionCmd)
}
