package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gossip-project/gossip-client/store"
)

var (
	sendContact string
	sendText    string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a text message to a contact",
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendContact, "contact", "", "contact's identity (bech32)")
	sendCmd.Flags().StringVar(&sendText, "text", "", "message text")
	sendCmd.MarkFlagRequired("contact")
	sendCmd.MarkFlagRequired("text")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	contact, err := parseID(sendContact)
	if err != nil {
		return fmt.Errorf("parse --contact: %w", err)
	}

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	m, err := sess.SendMessage(ctx, contact, store.MessageText, sendText, nil, nil)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	fmt.Printf("message %d queued, status=%s\n", m.ID, m.Status)
	return nil
}
