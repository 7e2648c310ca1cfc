package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

const (
	keyFileCmdFlag      = "key-file"
	forceKeyGenCmdFlag  = "force"
	defaultKeysFileName = "key.hex"
)

type keysConfig struct {
	Base            *baseConfiguration
	KeyFilePath     string
	ForceGeneration bool
}

func newKeysCmd(baseConfig *baseConfiguration) *cobra.Command {
	config := &keysConfig{Base: baseConfig}
	var keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Manages the secp256k1 keys of the node accounts",
	}
	keysCmd.PersistentFlags().StringVarP(&config.KeyFilePath, keyFileCmdFlag, "k", "", fmt.Sprintf("path to the key file (default: $DRN_HOME/%s)", defaultKeysFileName))

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generates new key and prints the address of the account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateKey(cmd, config)
		},
	}
	generateCmd.Flags().BoolVarP(&config.ForceGeneration, forceKeyGenCmdFlag, "f", false, "overwrites existing key file")

	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "Prints the account address of the key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.LoadECDSA(config.keyFile())
			if err != nil {
				return fmt.Errorf("failed to load key %s: %w", config.keyFile(), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(key.PublicKey).Hex())
			return nil
		},
	}
	keysCmd.AddCommand(generateCmd, addressCmd)
	return keysCmd
}

func (c *keysConfig) keyFile() string {
	if c.KeyFilePath != "" {
		return c.KeyFilePath
	}
	return filepath.Join(c.Base.HomeDir, defaultKeysFileName)
}

func generateKey(cmd *cobra.Command, config *keysConfig) error {
	file := config.keyFile()
	if _, err := os.Stat(file); err == nil && !config.ForceGeneration {
		return fmt.Errorf("key file %s already exists, use --%s to overwrite", file, forceKeyGenCmdFlag)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	if err := crypto.SaveECDSA(file, key); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}
