package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	hexprox "github.com/hexprox/hexprox"
	"github.com/hexprox/hexprox/internal/credpool"
	"github.com/hexprox/hexprox/internal/secretstore"
)

var secretFile string

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage credential-set documents in the secret store",
}

var secretPutCmd = &cobra.Command{
	Use:   "put <api-key>",
	Short: "Store the credential-set document for an API key",
	Long: `Validates a credential-set document and stores it under the
credential-set-<api-key> name in the configured secret store. The document
must have the shape:

  {"count": 2, "sets": [{"client_id": "...", "client_secret": "..."}, ...]}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := os.ReadFile(secretFile)
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}
		if err := credpool.ValidateDocument(doc); err != nil {
			return err
		}

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		writer, ok := store.(secretstore.Writer)
		if !ok {
			return fmt.Errorf("the configured secret store is read-only")
		}
		name := "credential-set-" + args[0]
		if err := writer.Put(cmd.Context(), name, doc); err != nil {
			return err
		}
		fmt.Printf("stored %s\n", name)
		return nil
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get <api-key>",
	Short: "Print the credential-set document for an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		doc, err := store.Fetch(cmd.Context(), "credential-set-"+args[0])
		if err != nil {
			return err
		}
		fmt.Println(string(doc))
		return nil
	},
}

func openStore(cmd *cobra.Command) (secretstore.Store, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("a config file is required (--config or HEXPROX_CONFIG)")
	}
	cfg, err := hexprox.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	return secretstore.New(cmd.Context(), cfg.SecretStore)
}

func init() {
	secretPutCmd.Flags().StringVarP(&secretFile, "file", "f", "", "path to the credential-set JSON document")
	_ = secretPutCmd.MarkFlagRequired("file")
	secretCmd.AddCommand(secretPutCmd)
	secretCmd.AddCommand(secretGetCmd)
}
