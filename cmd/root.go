package cmd

import (
	"fmt"
	"os"

	"github.com/cedarkv/cedar/cmd/cli"
	"github.com/cedarkv/cedar/cmd/kv"
	"github.com/cedarkv/cedar/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cedar",
		Short: "in-memory RESP key-value store",
		Long: fmt.Sprintf(`cedar (v%s)

An in-memory key-value store speaking the Redis RESP protocol over TCP,
with per-key expirations, publish/subscribe and binary snapshots.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cedar",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cedar v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(cli.CliCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
