package wslink

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultNetworkTimeout = time.Second * 10
	defaultWriteWait      = time.Second * 5
	defaultPollInterval   = time.Millisecond * 500
	defaultPingEvery      = time.Second * 10
	defaultReconnectDelay = time.Second * 10

	defaultSendMaxRetries = 5
	defaultSendRetryBase  = time.Millisecond * 20
	defaultSendSlowRetry  = time.Millisecond * 250

	DefaultMaxMessageSize  = 1 << 20 // 1MB
	DefaultReadBufferSize  = 4096
	DefaultWriteBufferSize = 4096
)

// Options configures a Client. Every field is validated once, at
// construction; a zero Options with a URL is usable.
type Options struct {
	// URL is the endpoint to connect to. ws and wss schemes only.
	URL string
	// Subprotocols to offer in the handshake, in preference order.
	Subprotocols []string
	// RequestHeaders are extra headers for the upgrade request.
	RequestHeaders http.Header

	// If not set it will default to 4096 bytes.
	ReadBufferSize int
	// If not set it will default to 4096 bytes. Outgoing messages are
	// segmented into frames of this size; only the last carries FIN.
	WriteBufferSize int
	// Max size of one reassembled inbound message. The accumulator is
	// sized to this once. If not set it will default to 1MB.
	MaxMessageSize int

	// Covers dial, TLS handshake and upgrade handshake together.
	// If not set it will default to 10 seconds.
	NetworkTimeout time.Duration
	// Per-frame write deadline. If not set it will default to 5 seconds.
	WriteWait time.Duration
	// How long the background task blocks waiting for readability
	// before it re-checks stop and keepalive state.
	// If not set it will default to 500 milliseconds.
	PollInterval time.Duration
	// Interval between outgoing pings. If not set it will default to
	// 10 seconds. Negative disables pinging.
	PingInterval time.Duration
	// How long to wait for a pong before declaring the connection
	// dead. Zero disables the check.
	PongWait time.Duration

	// Reconnect is on by default, matching a long-lived client. Set to
	// true to make Closed terminal.
	DisableAutoReconnect bool
	// Fixed delay between reconnect cycles.
	// If not set it will default to 10 seconds.
	ReconnectDelay time.Duration
	// Max consecutive failed connection attempts before giving up.
	// A successful connection resets the count. Zero means unlimited.
	MaxReconnectAttempts int

	// Send retry policy for transient would-block conditions: up to
	// SendMaxRetries attempts with exponential backoff starting at
	// SendRetryBase, then a slow fixed SendSlowRetry interval until
	// the caller's deadline.
	SendMaxRetries int
	SendRetryBase  time.Duration
	SendSlowRetry  time.Duration

	// Optional outbound rate limit, messages per second with a burst.
	// Zero disables limiting.
	MessagesPerSecond int
	SendBurst         int

	// Reject inbound text messages whose payload is not valid UTF-8
	// with close code 1007. Off by default.
	ValidateUTF8 bool

	// TLSConfig, when set, is used as-is for wss endpoints. Otherwise
	// a config is built from the PEM material below.
	TLSConfig          *tls.Config
	CACertPEM          []byte
	ClientCertPEM      []byte
	ClientKeyPEM       []byte
	ServerName         string
	InsecureSkipVerify bool

	// Logger receives the library's sparse diagnostics. If not set,
	// logging is discarded.
	Logger *slog.Logger
}

func (o *Options) WithDefault() {
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	if o.WriteBufferSize == 0 {
		o.WriteBufferSize = DefaultWriteBufferSize
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.NetworkTimeout == 0 {
		o.NetworkTimeout = defaultNetworkTimeout
	}
	if o.WriteWait == 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.PingInterval == 0 {
		o.PingInterval = defaultPingEvery
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.SendMaxRetries == 0 {
		o.SendMaxRetries = defaultSendMaxRetries
	}
	if o.SendRetryBase == 0 {
		o.SendRetryBase = defaultSendRetryBase
	}
	if o.SendSlowRetry == 0 {
		o.SendSlowRetry = defaultSendSlowRetry
	}
	if o.SendBurst == 0 {
		o.SendBurst = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// endpoint is the parsed form of Options.URL.
type endpoint struct {
	host   string
	port   string
	path   string
	secure bool
}

func parseEndpoint(raw string) (endpoint, error) {
	var ep endpoint

	u, err := url.Parse(raw)
	if err != nil {
		return ep, err
	}

	switch u.Scheme {
	case "ws":
		ep.secure = false
	case "wss":
		ep.secure = true
	default:
		return ep, ErrUnsupportedScheme
	}
	if u.Hostname() == "" {
		return ep, ErrMissingHost
	}

	ep.host = u.Hostname()
	ep.port = u.Port()
	if ep.port == "" {
		if ep.secure {
			ep.port = "443"
		} else {
			ep.port = "80"
		}
	}

	ep.path = u.EscapedPath()
	if ep.path == "" {
		ep.path = "/"
	}
	if u.RawQuery != "" {
		ep.path += "?" + u.RawQuery
	}

	return ep, nil
}

func (ep endpoint) addr() string {
	return ep.host + ":" + ep.port
}

func (ep endpoint) hostHeader() string {
	if (ep.secure && ep.port == "443") || (!ep.secure && ep.port == "80") {
		return ep.host
	}
	return ep.addr()
}

func (ep endpoint) requestURI() string {
	return ep.path
}

// tlsConfig builds the TLS client config for a wss endpoint. Material
// was validated at construction; errors here cannot occur after a
// successful NewClient.
func (o *Options) tlsConfig(ep endpoint) *tls.Config {
	if o.TLSConfig != nil {
		return o.TLSConfig.Clone()
	}

	cfg := &tls.Config{
		ServerName:         o.ServerName,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
	if cfg.ServerName == "" {
		cfg.ServerName = ep.host
	}
	if len(o.CACertPEM) > 0 {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(o.CACertPEM)
		cfg.RootCAs = pool
	}
	if len(o.ClientCertPEM) > 0 {
		cert, err := tls.X509KeyPair(o.ClientCertPEM, o.ClientKeyPEM)
		if err == nil {
			cfg.Certificates = []tls.Certificate{cert}
		}
	}
	return cfg
}

// validate runs the construction-time checks. Nothing after NewClient
// re-validates configuration.
func (o *Options) validate() error {
	if _, err := parseEndpoint(o.URL); err != nil {
		return err
	}
	if o.ReadBufferSize < 0 || o.WriteBufferSize < 0 || o.MaxMessageSize < 0 {
		return ErrInvalidBufferSize
	}
	if o.MaxMessageSize < o.ReadBufferSize {
		return ErrInvalidBufferSize
	}
	if len(o.CACertPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(o.CACertPEM) {
			return ErrInvalidTLSMaterial
		}
	}
	if len(o.ClientCertPEM) > 0 || len(o.ClientKeyPEM) > 0 {
		if _, err := tls.X509KeyPair(o.ClientCertPEM, o.ClientKeyPEM); err != nil {
			return ErrInvalidTLSMaterial
		}
	}
	return nil
}
