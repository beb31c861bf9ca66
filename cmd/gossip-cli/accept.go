package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gossip-project/gossip-client/store"
)

var (
	acceptContact   string
	acceptContactPk string
)

var acceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Accept a pending incoming discussion request",
	RunE:  runAccept,
}

func init() {
	rootCmd.AddCommand(acceptCmd)
	acceptCmd.Flags().StringVar(&acceptContact, "contact", "", "contact's identity (bech32)")
	acceptCmd.Flags().StringVar(&acceptContactPk, "contact-pk", "", "contact's static public key (hex)")
	acceptCmd.MarkFlagRequired("contact")
	acceptCmd.MarkFlagRequired("contact-pk")
}

func runAccept(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	contact, err := parseID(acceptContact)
	if err != nil {
		return fmt.Errorf("parse --contact: %w", err)
	}
	contactPk, err := parsePubKeyHex(acceptContactPk)
	if err != nil {
		return fmt.Errorf("parse --contact-pk: %w", err)
	}

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	discussions, err := sess.ListDiscussions(ctx)
	if err != nil {
		return fmt.Errorf("list discussions: %w", err)
	}
	var target *store.Discussion
	for _, d := range discussions {
		if d.ContactUserID == contact {
			target = d
			break
		}
	}
	if target == nil {
		return errors.New("no pending discussion found for that contact; run sync first")
	}

	if err := sess.AcceptDiscussion(ctx, target, contactPk); err != nil {
		return fmt.Errorf("accept discussion: %w", err)
	}

	fmt.Printf("accepted discussion with %s\n", contact)
	return nil
}
