package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gabsuren/wslink"
)

func sendCmd() *cobra.Command {
	flags := &connFlags{}
	var (
		binary bool
		wait   int
	)

	cmd := &cobra.Command{
		Use:   "send <url> [message]",
		Short: "Connect, send one message and optionally wait for replies",
		Long: `Send connects, sends the message given as the second argument (or
read from stdin when omitted) and exits. With --wait N it stays
connected until N messages came back and prints them.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if len(args) == 2 {
				payload = []byte(args[1])
			} else {
				var err error
				payload, err = io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
			}

			opts, err := flags.options(args[0])
			if err != nil {
				return err
			}
			opts.DisableAutoReconnect = true

			client, err := wslink.NewClient(opts)
			if err != nil {
				return err
			}
			if err := client.Start(); err != nil {
				return err
			}
			defer func() {
				client.Stop()
				for range client.Events() {
				}
			}()

			received := 0
			for ev := range client.Events() {
				switch ev.Type {
				case wslink.EventConnected:
					opcode := wslink.OpcodeText
					if binary {
						opcode = wslink.OpcodeBinary
					}
					if _, err := client.Send(context.Background(), opcode, payload); err != nil {
						return err
					}
					if wait == 0 {
						return nil
					}
				case wslink.EventData:
					if ev.Data.Opcode == wslink.OpcodeText {
						fmt.Println(string(ev.Data.Payload))
					} else {
						os.Stdout.Write(ev.Data.Payload)
					}
					received++
					if received >= wait {
						return nil
					}
				case wslink.EventError:
					return ev.Err.Err
				}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&binary, "binary", "b", false, "Send the payload as a binary message")
	cmd.Flags().IntVarP(&wait, "wait", "w", 0, "Stay connected until this many replies arrived")
	return cmd
}
