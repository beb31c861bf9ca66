package main

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/curve25519"

	"github.com/gossip-project/gossip-client/identity"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new static X25519 identity keypair",
	Long: `Generate a new static X25519 identity keypair and write it to the
path given by --key. This engine treats mnemonic-to-key derivation as
the embedding application's concern; keygen exists only so this
reference CLI has an identity to run as.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, priv); err != nil {
		return fmt.Errorf("generate private scalar: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	var id identity.ID
	copy(id[:], pub)

	if err := saveKeyFile(flagKey, priv, pub, id); err != nil {
		return fmt.Errorf("save key file: %w", err)
	}

	fmt.Printf("identity: %s\n", id)
	fmt.Printf("public key (hex): %x\n", pub)
	fmt.Printf("key file: %s\n", flagKey)
	return nil
}
