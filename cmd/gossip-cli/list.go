package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List this account's discussions and their derived status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	discussions, err := sess.ListDiscussions(ctx)
	if err != nil {
		return fmt.Errorf("list discussions: %w", err)
	}

	if len(discussions) == 0 {
		fmt.Println("no discussions yet")
		return nil
	}

	for _, d := range discussions {
		status, err := sess.GetDiscussionStatus(ctx, d)
		if err != nil {
			return fmt.Errorf("derive status for %s: %w", d.ContactUserID, err)
		}
		fmt.Printf("%s  %-12s  unread=%-3d  last=%q (%s)\n",
			d.ContactUserID, status, d.UnreadCount, d.LastMessageContent, formatTime(d.LastMessageTimestamp))
	}
	return nil
}
