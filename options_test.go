package wslink

import (
	"errors"
	"testing"
	"time"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    endpoint
		wantErr error
	}{
		{
			name: "plain ws with default port",
			url:  "ws://example.com/socket",
			want: endpoint{host: "example.com", port: "80", path: "/socket"},
		},
		{
			name: "wss with default port",
			url:  "wss://example.com",
			want: endpoint{host: "example.com", port: "443", path: "/", secure: true},
		},
		{
			name: "explicit port and query",
			url:  "ws://example.com:9001/echo?agent=wslink",
			want: endpoint{host: "example.com", port: "9001", path: "/echo?agent=wslink"},
		},
		{
			name:    "http scheme rejected",
			url:     "http://example.com",
			wantErr: ErrUnsupportedScheme,
		},
		{
			name:    "missing host",
			url:     "ws:///path",
			wantErr: ErrMissingHost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := parseEndpoint(tt.url)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ep != tt.want {
				t.Errorf("endpoint = %+v, want %+v", ep, tt.want)
			}
		})
	}
}

func TestEndpointHostHeader(t *testing.T) {
	tests := []struct {
		ep   endpoint
		want string
	}{
		{endpoint{host: "a.test", port: "80"}, "a.test"},
		{endpoint{host: "a.test", port: "443", secure: true}, "a.test"},
		{endpoint{host: "a.test", port: "9001"}, "a.test:9001"},
		{endpoint{host: "a.test", port: "80", secure: true}, "a.test:80"},
	}
	for _, tt := range tests {
		if got := tt.ep.hostHeader(); got != tt.want {
			t.Errorf("hostHeader(%+v) = %q, want %q", tt.ep, got, tt.want)
		}
	}
}

func TestWithDefault(t *testing.T) {
	o := &Options{URL: "ws://example.com"}
	o.WithDefault()

	if o.ReadBufferSize != DefaultReadBufferSize {
		t.Errorf("ReadBufferSize = %d", o.ReadBufferSize)
	}
	if o.MaxMessageSize != DefaultMaxMessageSize {
		t.Errorf("MaxMessageSize = %d", o.MaxMessageSize)
	}
	if o.NetworkTimeout != 10*time.Second {
		t.Errorf("NetworkTimeout = %v", o.NetworkTimeout)
	}
	if o.Logger == nil {
		t.Error("Logger not defaulted")
	}

	// explicit values survive
	o2 := &Options{URL: "ws://example.com", ReadBufferSize: 128, PingInterval: -1}
	o2.WithDefault()
	if o2.ReadBufferSize != 128 {
		t.Errorf("ReadBufferSize = %d, want 128", o2.ReadBufferSize)
	}
	if o2.PingInterval != -1 {
		t.Errorf("PingInterval = %v, negative means disabled", o2.PingInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{
			name: "minimal valid",
			opts: Options{URL: "ws://example.com"},
		},
		{
			name:    "bad scheme",
			opts:    Options{URL: "ftp://example.com"},
			wantErr: ErrUnsupportedScheme,
		},
		{
			name:    "read buffer larger than message cap",
			opts:    Options{URL: "ws://example.com", ReadBufferSize: 8192, MaxMessageSize: 1024},
			wantErr: ErrInvalidBufferSize,
		},
		{
			name:    "garbage CA material",
			opts:    Options{URL: "wss://example.com", CACertPEM: []byte("not a pem")},
			wantErr: ErrInvalidTLSMaterial,
		},
		{
			name:    "client cert without key",
			opts:    Options{URL: "wss://example.com", ClientCertPEM: []byte("cert")},
			wantErr: ErrInvalidTLSMaterial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.opts
			o.WithDefault()
			err := o.validate()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewClientRejectsBadOptions(t *testing.T) {
	if _, err := NewClient(&Options{URL: "tcp://example.com"}); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("err = %v, want ErrUnsupportedScheme", err)
	}
	if _, err := NewClient(nil); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("nil options err = %v, want ErrUnsupportedScheme", err)
	}
}

func TestClientStartOnlyOnce(t *testing.T) {
	c, err := NewClient(&Options{
		URL:                  "ws://127.0.0.1:1", // nothing listens there
		DisableAutoReconnect: true,
		NetworkTimeout:       100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start err = %v, want ErrAlreadyStarted", err)
	}
	c.Stop()
	for range c.Events() {
	}
}
