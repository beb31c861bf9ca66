package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteContactID string

var deleteContactCmd = &cobra.Command{
	Use:   "delete-contact",
	Short: "Delete a contact and forget their session",
	RunE:  runDeleteContact,
}

func init() {
	rootCmd.AddCommand(deleteContactCmd)
	deleteContactCmd.Flags().StringVar(&deleteContactID, "contact", "", "contact's identity (bech32)")
	deleteContactCmd.MarkFlagRequired("contact")
}

func runDeleteContact(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	contact, err := parseID(deleteContactID)
	if err != nil {
		return fmt.Errorf("parse --contact: %w", err)
	}

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := sess.DeleteContact(ctx, contact); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	fmt.Printf("deleted contact %s\n", contact)
	return nil
}
