package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gabsuren/wslink"
)

func listenCmd() *cobra.Command {
	flags := &connFlags{}

	cmd := &cobra.Command{
		Use:   "listen <url>",
		Short: "Connect and print every incoming message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(args[0])
			if err != nil {
				return err
			}
			client, err := wslink.NewClient(opts)
			if err != nil {
				return err
			}
			if err := client.Start(); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				client.Stop()
			}()

			for ev := range client.Events() {
				switch ev.Type {
				case wslink.EventConnected:
					fmt.Fprintf(os.Stderr, "connected to %s\n", args[0])
				case wslink.EventData:
					if ev.Data.Opcode == wslink.OpcodeText {
						fmt.Println(string(ev.Data.Payload))
					} else {
						fmt.Printf("[%d bytes binary]\n", len(ev.Data.Payload))
					}
				case wslink.EventError:
					fmt.Fprintf(os.Stderr, "error: %v\n", ev.Err.Err)
				case wslink.EventDisconnected:
					fmt.Fprintln(os.Stderr, "disconnected")
				}
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
