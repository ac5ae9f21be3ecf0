package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/gabsuren/wslink"
)

// Client testee for the autobahn-testsuite fuzzing server: fetch the
// case count, echo every message of every case, then update reports.
//
// Run the suite with:
//
//	wstest -m fuzzingserver
const server = "ws://localhost:9001"
const agent = "wslink"

func main() {
	count, err := caseCount()
	if err != nil {
		fmt.Println("getCaseCount:", err)
		os.Exit(1)
	}
	fmt.Println("running", count, "cases")

	for i := 1; i <= count; i++ {
		runCase(i)
	}

	if err := oneShot(server + "/updateReports?agent=" + agent); err != nil {
		fmt.Println("updateReports:", err)
		os.Exit(1)
	}
	fmt.Println("done, reports updated")
}

func caseCount() (int, error) {
	client, err := wslink.NewClient(&wslink.Options{
		URL:                  server + "/getCaseCount",
		DisableAutoReconnect: true,
	})
	if err != nil {
		return 0, err
	}
	if err := client.Start(); err != nil {
		return 0, err
	}

	count := 0
	for ev := range client.Events() {
		if ev.Type == wslink.EventData {
			count, err = strconv.Atoi(string(ev.Data.Payload))
			if err != nil {
				return 0, err
			}
		}
	}
	return count, nil
}

func runCase(i int) {
	client, err := wslink.NewClient(&wslink.Options{
		URL:                  fmt.Sprintf("%s/runCase?case=%d&agent=%s", server, i, agent),
		DisableAutoReconnect: true,
		MaxMessageSize:       wslink.DefaultMaxMessageSize * 16, // autobahn tests messages up to 16MB
		WriteBufferSize:      wslink.DefaultMaxMessageSize,
	})
	if err != nil {
		fmt.Println("case", i, "options:", err)
		return
	}
	if err := client.Start(); err != nil {
		fmt.Println("case", i, "start:", err)
		return
	}

	for ev := range client.Events() {
		if ev.Type != wslink.EventData {
			continue
		}
		_, err := client.Send(context.TODO(), ev.Data.Opcode, ev.Data.Payload)
		if wslink.IsFatalErr(err) {
			continue // Connection closed, drain the remaining events
		} else if err != nil {
			fmt.Println("case", i, "non-fatal error:", err)
		}
	}
}

// oneShot connects, waits for the server to close and returns.
func oneShot(url string) error {
	client, err := wslink.NewClient(&wslink.Options{
		URL:                  url,
		DisableAutoReconnect: true,
	})
	if err != nil {
		return err
	}
	if err := client.Start(); err != nil {
		return err
	}
	for range client.Events() {
	}
	return nil
}
