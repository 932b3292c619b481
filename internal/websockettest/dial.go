// Package websockettest provides dial helpers for exercising the viewer
// bridge in tests.
package websockettest

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gorilla/websocket"
)

// Dial connects to the supplied ws:// URL with the default dialer.
func Dial(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(urlStr, header)
}

// DialIgnoringPings connects and disables the automatic ping/pong responses so
// tests can simulate an unresponsive viewer.
func DialIgnoringPings(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(urlStr, header)
	if err != nil {
		return nil, resp, err
	}
	conn.SetPingHandler(func(string) error { return nil })
	conn.SetPongHandler(func(string) error { return nil })
	return conn, resp, nil
}

// ServerURL rewrites an httptest server URL to the ws scheme and appends the
// supplied path.
func ServerURL(server *httptest.Server, path string) string {
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	if path == "" {
		return url
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return url + path
}
