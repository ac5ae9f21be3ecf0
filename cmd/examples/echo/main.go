package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/gabsuren/wslink"
)

// Connects to a local echo server and round-trips stdin lines.
func main() {
	client, err := wslink.NewClient(&wslink.Options{
		URL: "ws://localhost:8080/",
	})
	if err != nil {
		fmt.Println("bad options:", err)
		os.Exit(1)
	}
	if err := client.Start(); err != nil {
		fmt.Println("start:", err)
		os.Exit(1)
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			_, err := client.SendText(context.TODO(), scanner.Text())
			if wslink.IsFatalErr(err) {
				return // Connection closed
			} else if err != nil {
				fmt.Println("Non-fatal error:", err)
			}
		}
		client.Stop()
	}()

	for ev := range client.Events() {
		switch ev.Type {
		case wslink.EventConnected:
			fmt.Println("Connected, type to send")
		case wslink.EventData:
			fmt.Println("echo:", string(ev.Data.Payload))
		case wslink.EventError:
			fmt.Println("error:", ev.Err.Err)
		}
	}
}
