// The gameserver command runs the multiplayer server and its tooling.
//
// Commands:
//
//	serve: bind the stream and datagram transports and run the game loop
//	bot: connect simulated players to a running server
//	version: print build information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gameserver",
		Short: "Multiplayer game server",
		Long: `gameserver hosts a fixed number of player slots over a TCP stream
transport and a UDP datagram transport sharing one port. Reliable events go
over the stream, high-frequency position updates over datagrams.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		botCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
