package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	renameContact string
	renameName    string
)

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Set a custom display name for a discussion",
	RunE:  runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)
	renameCmd.Flags().StringVar(&renameContact, "contact", "", "contact's identity (bech32)")
	renameCmd.Flags().StringVar(&renameName, "name", "", "display name to set")
	renameCmd.MarkFlagRequired("contact")
	renameCmd.MarkFlagRequired("name")
}

func runRename(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	contact, err := parseID(renameContact)
	if err != nil {
		return fmt.Errorf("parse --contact: %w", err)
	}

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := sess.RenameDiscussion(ctx, contact, renameName); err != nil {
		return fmt.Errorf("rename discussion: %w", err)
	}

	fmt.Printf("renamed discussion with %s to %q\n", contact, renameName)
	return nil
}
