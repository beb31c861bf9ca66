package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gossip-project/gossip-client/events"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch announcements and messages, then run one refresh pass",
	Long: `sync drains the bulletin board's announcement log, drains the
message board for every seeker currently being watched, and runs one
refresh-driver pass (keep-alives, session-renewal detection). Run this
on a timer to keep a session live.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.On(events.MessageReceived, func(e events.Event) {
		fmt.Printf("[event] message received from %s (id=%d)\n", e.ContactUserID, e.MessageID)
	})
	engine.On(events.DiscussionRequest, func(e events.Event) {
		fmt.Printf("[event] discussion request from %s\n", e.ContactUserID)
	})
	engine.On(events.DiscussionAccepted, func(e events.Event) {
		fmt.Printf("[event] discussion accepted by %s\n", e.ContactUserID)
	})
	engine.On(events.SessionRenewalNeeded, func(e events.Event) {
		fmt.Printf("[event] session renewal needed for %s\n", e.ContactUserID)
	})
	engine.On(events.Error, func(e events.Event) {
		fmt.Printf("[event] error involving %s: %v\n", e.ContactUserID, e.Err)
	})

	if err := sess.SyncAnnouncements(ctx); err != nil {
		return fmt.Errorf("sync announcements: %w", err)
	}
	if err := sess.SyncMessages(ctx); err != nil {
		return fmt.Errorf("sync messages: %w", err)
	}
	if err := sess.StateUpdate(ctx); err != nil {
		return fmt.Errorf("state update: %w", err)
	}

	fmt.Println("sync complete")
	return nil
}
