package kv

import (
	"github.com/cedarkv/cedar/client"
	cmdUtil "github.com/cedarkv/cedar/cmd/util"
	"github.com/spf13/cobra"
)

var (
	kvClient *client.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform one-shot key-value store operations",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(cmdUtil.InitClientConfig)

	// Add common connection flags to the KV command
	cmdUtil.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(pingCmd)
	KeyValueCommands.AddCommand(publishCmd)
	KeyValueCommands.AddCommand(subscribeCmd)
	KeyValueCommands.AddCommand(saveCmd)
	KeyValueCommands.AddCommand(benchCmd)
}

// setupKVClient connects to the configured server
func setupKVClient(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	// the bench command manages its own pooled connections
	if cmd.Name() == "bench" {
		return nil
	}

	config := cmdUtil.GetClientConfig()

	var err error
	kvClient, err = client.Connect(config.Addr())
	return err
}
