package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var switchNodeURL string

var switchNodeCmd = &cobra.Command{
	Use:   "switch-node",
	Short: "Point this client at a different bulletin node",
	RunE:  runSwitchNode,
}

func init() {
	rootCmd.AddCommand(switchNodeCmd)
	switchNodeCmd.Flags().StringVar(&switchNodeURL, "url", "", "new bulletin node base URL")
	switchNodeCmd.MarkFlagRequired("url")
}

func runSwitchNode(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	engine, sess, err := openEngineAndSession(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()
	defer sess.CloseSession()

	if err := engine.SwitchBulletinNode(ctx, switchNodeURL); err != nil {
		return fmt.Errorf("switch bulletin node: %w", err)
	}

	fmt.Printf("switched to %s\n", switchNodeURL)
	return nil
}
