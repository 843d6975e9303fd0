// Package cli implements the interactive REPL client with in-memory
// command history.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cedarkv/cedar/client"
	cmdUtil "github.com/cedarkv/cedar/cmd/util"
	"github.com/spf13/cobra"
)

var CliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Interactive cedar client",
	Long:  `Connect to a cedar server and issue commands interactively. Type "help" for the supported commands, "history" for the session history and "exit" to quit.`,
	RunE:  run,
}

func init() {
	cobra.OnInitialize(cmdUtil.InitClientConfig)
	cmdUtil.SetupClientFlags(CliCmd)
}

func run(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := cmdUtil.GetClientConfig()
	c, err := client.Connect(config.Addr())
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("connected to %s\n", config.Addr())

	var history []string
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("%s> ", config.Addr())
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		history = append(history, line)

		fields := strings.Fields(line)
		verb := strings.ToLower(fields[0])
		args := fields[1:]

		switch verb {
		case "exit", "quit":
			return nil
		case "help":
			printHelp()
		case "history":
			for i, entry := range history {
				fmt.Printf("%4d  %s\n", i+1, entry)
			}
		default:
			if err := dispatch(c, verb, args); err != nil {
				fmt.Printf("(error) %v\n", err)
			}
		}
	}
}

func dispatch(c *client.Client, verb string, args []string) error {
	switch verb {
	case "ping":
		var msg []byte
		if len(args) == 1 {
			msg = []byte(args[0])
		} else if len(args) > 1 {
			return fmt.Errorf("usage: ping [message]")
		}
		reply, err := c.Ping(msg)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", reply)

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <key>")
		}
		value, ok, err := c.Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("(nil)")
		} else {
			fmt.Printf("%q\n", value)
		}

	case "set":
		switch len(args) {
		case 2:
			if err := c.Set(args[0], []byte(args[1])); err != nil {
				return err
			}
		case 4:
			if !strings.EqualFold(args[2], "px") {
				return fmt.Errorf("usage: set <key> <value> [px <milliseconds>]")
			}
			ms, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil || ms <= 0 {
				return fmt.Errorf("px wants a positive integer")
			}
			if err := c.SetWithTTL(args[0], []byte(args[1]), time.Duration(ms)*time.Millisecond); err != nil {
				return err
			}
		default:
			return fmt.Errorf("usage: set <key> <value> [px <milliseconds>]")
		}
		fmt.Println("OK")

	case "del":
		if len(args) != 1 {
			return fmt.Errorf("usage: del <key>")
		}
		existed, err := c.Del(args[0])
		if err != nil {
			return err
		}
		if existed {
			fmt.Println("(integer) 1")
		} else {
			fmt.Println("(integer) 0")
		}

	case "publish":
		if len(args) != 2 {
			return fmt.Errorf("usage: publish <channel> <message>")
		}
		n, err := c.Publish(args[0], []byte(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("(integer) %d\n", n)

	case "subscribe":
		if len(args) == 0 {
			return fmt.Errorf("usage: subscribe <channel> [channel...]")
		}
		sub, err := c.Subscribe(args...)
		if err != nil {
			return err
		}
		for _, channel := range args {
			fmt.Printf("subscribed to %q (Ctrl-C to quit)\n", channel)
		}
		for {
			msg, err := sub.NextMessage()
			if err != nil {
				return err
			}
			fmt.Printf("[%s] %s\n", msg.Channel, msg.Payload)
		}

	case "save":
		if err := c.Save(); err != nil {
			return err
		}
		fmt.Println("OK")

	default:
		return fmt.Errorf("unknown command %q, type help", verb)
	}

	return nil
}

func printHelp() {
	fmt.Print(`commands:
  ping [message]
  get <key>
  set <key> <value> [px <milliseconds>]
  del <key>
  publish <channel> <message>
  subscribe <channel> [channel...]
  save
  history
  exit
`)
}
