package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gabsuren/wslink"
)

// connFlags are the flags shared by every command that dials.
type connFlags struct {
	insecure     bool
	noReconnect  bool
	verbose      bool
	subprotocols []string
	headers      []string
	timeout      time.Duration
	reconnect    time.Duration
}

func (f *connFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	cmd.Flags().BoolVar(&f.noReconnect, "no-reconnect", false, "Exit when the connection drops")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log connection internals to stderr")
	cmd.Flags().StringSliceVar(&f.subprotocols, "subprotocol", nil, "Subprotocol to offer (repeatable)")
	cmd.Flags().StringSliceVarP(&f.headers, "header", "H", nil, "Extra handshake header, 'Name: value' (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "Dial and handshake timeout")
	cmd.Flags().DurationVar(&f.reconnect, "reconnect", 10*time.Second, "Delay between reconnect attempts")
}

func (f *connFlags) options(url string) (*wslink.Options, error) {
	headers := http.Header{}
	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q, want 'Name: value'", h)
		}
		headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	opts := &wslink.Options{
		URL:                  url,
		Subprotocols:         f.subprotocols,
		RequestHeaders:       headers,
		NetworkTimeout:       f.timeout,
		ReconnectDelay:       f.reconnect,
		DisableAutoReconnect: f.noReconnect,
		InsecureSkipVerify:   f.insecure,
	}
	if f.verbose {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return opts, nil
}
