// punserve is the serving control plane for the Pundora content generator:
// it fronts the generation service with a two-tier cache, admission control,
// and a delivery scheduler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "punserve",
		Short: "Serving control plane for the Pundora content generator",
		Long: `punserve fronts the Pundora generation service with a two-tier
content cache, per-identity rate limiting, and a scheduler that delivers
content over email, webhook, and SMS channels.`,
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the punserve version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "punserve", Version)
		},
	}
}
