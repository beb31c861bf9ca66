// Command gossip-cli is a reference command-line client over the
// gossipsdk engine: one cobra root command, one subcommand per
// operation in its own file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gossip-cli",
	Short: "Store-and-forward encrypted messaging client",
	Long: `gossip-cli drives the gossip messaging engine from the command
line: it opens a session against a local identity key and store, then
starts, accepts, and renews discussions and exchanges messages over a
bulletin-board transport.`,
}

var (
	flagConfig = ""
	flagKey    = ""
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file (optional, layered over built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "gossip.key", "path to this identity's key file (see keygen)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
