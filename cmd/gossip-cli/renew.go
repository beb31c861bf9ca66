package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	renewContact   string
	renewContactPk string
)

var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Force a fresh handshake with a contact whose session broke",
	RunE:  runRenew,
}

func init() {
	rootCmd.AddCommand(renewCmd)
	renewCmd.Flags().StringVar(&renewContact, "contact", "", "contact's identity (bech32)")
	renewCmd.Flags().StringVar(&renewContactPk, "contact-pk", "", "contact's static public key (hex)")
	renewCmd.MarkFlagRequired("contact")
	renewCmd.MarkFlagRequired("contact-pk")
}

func runRenew(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	contact, err := parseID(renewContact)
	if err != nil {
		return fmt.Errorf("parse --contact: %w", err)
	}
	contactPk, err := parsePubKeyHex(renewContactPk)
	if err != nil {
		return fmt.Errorf("parse --contact-pk: %w", err)
	}

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := sess.RenewDiscussion(ctx, contact, contactPk); err != nil {
		return fmt.Errorf("renew discussion: %w", err)
	}
	fmt.Printf("renewal initiated with %s\n", contact)
	return nil
}
