package wslink

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
)

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// HandshakeError reports a failed upgrade. StatusCode is the HTTP
// status the server answered with, 0 when the response never arrived.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("websocket handshake failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("websocket handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

type handshakeResult struct {
	StatusCode  int
	Subprotocol string
}

func secWebSocketKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

func secWebSocketAccept(key string) string {
	hashed := sha1.Sum([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(hashed[:])
}

// performHandshake runs the client side of the RFC 6455 opening
// handshake over an already-open transport: write the GET upgrade
// request, read the response, and verify the server committed to the
// upgrade.
func performHandshake(w io.Writer, br *bufio.Reader, ep endpoint, subprotocols []string, headers http.Header) (handshakeResult, error) {
	var res handshakeResult

	key, err := secWebSocketKey()
	if err != nil {
		return res, &HandshakeError{Err: err}
	}

	p := make([]byte, 0, 256)
	p = append(p, "GET "...)
	p = append(p, ep.requestURI()...)
	p = append(p, " HTTP/1.1\r\n"...)
	p = append(p, "Host: "...)
	p = append(p, ep.hostHeader()...)
	p = append(p, "\r\n"...)
	p = append(p, "Upgrade: websocket\r\n"...)
	p = append(p, "Connection: Upgrade\r\n"...)
	p = append(p, "Sec-WebSocket-Key: "...)
	p = append(p, key...)
	p = append(p, "\r\n"...)
	p = append(p, "Sec-WebSocket-Version: 13\r\n"...)
	if len(subprotocols) > 0 {
		p = append(p, "Sec-WebSocket-Protocol: "...)
		p = append(p, strings.Join(subprotocols, ", ")...)
		p = append(p, "\r\n"...)
	}
	for name, values := range headers {
		for _, v := range values {
			p = append(p, name...)
			p = append(p, ": "...)
			p = append(p, v...)
			p = append(p, "\r\n"...)
		}
	}
	p = append(p, "\r\n"...)

	if _, err := w.Write(p); err != nil {
		return res, &HandshakeError{Err: err}
	}

	resp, err := http.ReadResponse(br, &http.Request{Method: http.MethodGet})
	if err != nil {
		return res, &HandshakeError{Err: err}
	}
	defer resp.Body.Close()
	res.StatusCode = resp.StatusCode

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return res, &HandshakeError{StatusCode: resp.StatusCode, Err: ErrHandshakeBadStatus}
	}
	if !headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return res, &HandshakeError{StatusCode: resp.StatusCode, Err: ErrHandshakeBadHeader}
	}
	if !headerContainsToken(resp.Header, "Connection", "upgrade") {
		return res, &HandshakeError{StatusCode: resp.StatusCode, Err: ErrHandshakeBadHeader}
	}
	if resp.Header.Get("Sec-WebSocket-Accept") != secWebSocketAccept(key) {
		return res, &HandshakeError{StatusCode: resp.StatusCode, Err: ErrHandshakeBadAccept}
	}

	res.Subprotocol = resp.Header.Get("Sec-WebSocket-Protocol")
	if res.Subprotocol != "" && !slices.Contains(subprotocols, res.Subprotocol) {
		return res, &HandshakeError{StatusCode: resp.StatusCode, Err: ErrHandshakeBadHeader}
	}

	return res, nil
}

func headerContainsToken(h http.Header, name, token string) bool {
	raw := h.Get(name)
	if raw == "" {
		return false
	}
	for _, part := range strings.Split(strings.ToLower(raw), ",") {
		if strings.TrimSpace(part) == token {
			return true
		}
	}
	return false
}
