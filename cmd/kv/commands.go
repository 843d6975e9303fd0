package kv

import (
	"fmt"
	"time"

	cmdUtil "github.com/cedarkv/cedar/cmd/util"
	"github.com/spf13/cobra"
)

var (
	setTTLMillis int64

	getCmd = &cobra.Command{
		Use:   "get <key>",
		Short: "Get the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer kvClient.Close()
			value, ok, err := kvClient.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("(nil)")
				return nil
			}
			fmt.Printf("%s\n", value)
			return nil
		},
	}

	setCmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set the value of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer kvClient.Close()
			if setTTLMillis > 0 {
				ttl := time.Duration(setTTLMillis) * time.Millisecond
				if err := kvClient.SetWithTTL(args[0], []byte(args[1]), ttl); err != nil {
					return err
				}
			} else if err := kvClient.Set(args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}

	delCmd = &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer kvClient.Close()
			existed, err := kvClient.Del(args[0])
			if err != nil {
				return err
			}
			if existed {
				fmt.Println("(integer) 1")
			} else {
				fmt.Println("(integer) 0")
			}
			return nil
		},
	}

	pingCmd = &cobra.Command{
		Use:   "ping [message]",
		Short: "Check the connection to the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer kvClient.Close()
			var msg []byte
			if len(args) == 1 {
				msg = []byte(args[0])
			}
			reply, err := kvClient.Ping(msg)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", reply)
			return nil
		},
	}

	publishCmd = &cobra.Command{
		Use:   "publish <channel> <message>",
		Short: "Publish a message to a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer kvClient.Close()
			n, err := kvClient.Publish(args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("(integer) %d\n", n)
			return nil
		},
	}

	subscribeCmd = &cobra.Command{
		Use:   "subscribe <channel> [channel...]",
		Short: "Subscribe to channels and print incoming messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer kvClient.Close()
			sub, err := kvClient.Subscribe(args...)
			if err != nil {
				return err
			}
			for _, channel := range args {
				fmt.Printf("subscribed to %q\n", channel)
			}
			for {
				msg, err := sub.NextMessage()
				if err != nil {
					return err
				}
				fmt.Printf("[%s] %s\n", msg.Channel, msg.Payload)
			}
		},
	}

	saveCmd = &cobra.Command{
		Use:   "save",
		Short: "Ask the server for a synchronous snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer kvClient.Close()
			if err := kvClient.Save(); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
)

func init() {
	setCmd.Flags().Int64Var(&setTTLMillis, "px", 0, cmdUtil.WrapString("Expire the key after this many milliseconds"))
}
