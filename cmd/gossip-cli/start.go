package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	startContact   string
	startContactPk string
	startUsername  string
	startMessage   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new discussion with a contact",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&startContact, "contact", "", "contact's identity (bech32)")
	startCmd.Flags().StringVar(&startContactPk, "contact-pk", "", "contact's static public key (hex)")
	startCmd.Flags().StringVar(&startUsername, "username", "", "this account's display name, sent in the announcement")
	startCmd.Flags().StringVar(&startMessage, "message", "", "greeting text sent in the announcement")
	startCmd.MarkFlagRequired("contact")
	startCmd.MarkFlagRequired("contact-pk")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	contact, err := parseID(startContact)
	if err != nil {
		return fmt.Errorf("parse --contact: %w", err)
	}
	contactPk, err := parsePubKeyHex(startContactPk)
	if err != nil {
		return fmt.Errorf("parse --contact-pk: %w", err)
	}

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	d, err := sess.StartDiscussion(ctx, contact, contactPk, startUsername, startMessage)
	if err != nil {
		return fmt.Errorf("start discussion: %w", err)
	}

	fmt.Printf("discussion started with %s (direction=%s weAccepted=%v)\n", contact, d.Direction, d.WeAccepted)
	return nil
}
