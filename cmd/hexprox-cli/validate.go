package main

import (
	"fmt"

	"github.com/spf13/cobra"

	hexprox "github.com/hexprox/hexprox"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate a proxy configuration file (JSON/YAML)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := hexprox.LoadConfig(args[0])
		if err != nil {
			return err
		}
		cfg.ApplyDefaults()
		if err := hexprox.ValidateConfig(*cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		fmt.Printf("%s is valid (listen %s, %d origin pattern(s), secret store %q)\n",
			args[0], cfg.Listen, len(cfg.Origins), cfg.SecretStore.Driver)
		return nil
	},
}
