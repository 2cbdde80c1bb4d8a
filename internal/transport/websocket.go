package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// mqttSubprotocol is the WebSocket subprotocol the broker requires.
const mqttSubprotocol = "mqttv3.1"

var wsDialer = websocket.Dialer{
	Subprotocols:     []string{mqttSubprotocol},
	HandshakeTimeout: 15 * time.Second,
}

// DialSignedWebSocket opens a WebSocket to signedURL (already SigV4-signed
// by the caller) and bridges it to a Duplex backed by a bounded pipe.
// logger may be nil.
func DialSignedWebSocket(ctx context.Context, signedURL string, logger *logrus.Logger) (Duplex, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	conn, _, err := wsDialer.DialContext(ctx, signedURL, http.Header{})
	if err != nil {
		return nil, err
	}
	d := &webSocketDuplex{conn: conn, pipe: newBoundedPipe(DefaultBoundedPipeCapacity), logger: logger}
	go d.pump()
	return d, nil
}

// webSocketDuplex adapts a gorilla/websocket.Conn to Duplex. Inbound binary
// messages are copied, in order and in full, into the bounded pipe; the
// session reads MQTT frames back out of the pipe's Read side. Outbound
// writes are each forwarded as one binary WebSocket message, matching the
// write-per-message shape the gomqtt reference material in this repo's
// example pack uses for the same bridge.
type webSocketDuplex struct {
	conn   *websocket.Conn
	pipe   *boundedPipe
	logger *logrus.Logger

	writeMu sync.Mutex
}

func (d *webSocketDuplex) pump() {
	defer d.pipe.Close()
	for {
		messageType, reader, err := d.conn.NextReader()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			d.logger.Warn("iotmqtt: discarding non-binary websocket message")
			continue
		}
		if _, err := io.Copy(d.pipe, reader); err != nil {
			return
		}
	}
}

func (d *webSocketDuplex) Read(p []byte) (int, error) {
	return d.pipe.Read(p)
}

func (d *webSocketDuplex) Write(p []byte) (int, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	w, err := d.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.Close(); err != nil {
		return n, err
	}
	return n, nil
}

func (d *webSocketDuplex) Close() error {
	d.pipe.Close()
	return d.conn.Close()
}
