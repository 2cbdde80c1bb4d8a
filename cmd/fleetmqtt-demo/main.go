// Command fleetmqtt-demo wires the iotmqtt client core end to end against
// a real broker: it reads connection parameters from the environment,
// connects over direct TLS, subscribes to a status topic, and publishes a
// heartbeat on a timer until interrupted.
//
// The MQTT wire codec (framing, QoS-1 retransmission, keep-alive pings) is
// an external collaborator this module does not implement; demoSession
// below is a minimal stand-in that proves the lifecycle controller's
// collaborator contract without claiming to be a production codec.
package main

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetlink/iotmqtt"
	"github.com/fleetlink/iotmqtt/internal/obslog"
	"github.com/fleetlink/iotmqtt/internal/shutdown"
)

func main() {
	logger := obslog.New(obslog.Config{
		Level:  envOr("FLEETMQTT_LOG_LEVEL", "info"),
		Format: envOr("FLEETMQTT_LOG_FORMAT", "json"),
	})

	host := envOr("FLEETMQTT_HOST", "localhost")
	port := envOrUint16("FLEETMQTT_PORT", 8883)
	clientID := envOr("FLEETMQTT_CLIENT_ID", "fleetmqtt-demo")

	logger.WithFields(logrus.Fields{
		"host":      host,
		"port":      port,
		"client_id": clientID,
	}).Info("starting fleetmqtt demo client")

	client := iotmqtt.New(func(cfg iotmqtt.SessionConfig) iotmqtt.Session {
		return newDemoSession(cfg, logger)
	}, logger)

	statusTopic := clientID + "/status"
	cfg := iotmqtt.DefaultClientConfig(clientID)

	ok, err := client.Connect(cfg, iotmqtt.DirectTLSSpec{
		Host:                    host,
		Port:                    port,
		AllowInsecureSkipVerify: os.Getenv("FLEETMQTT_INSECURE") == "true",
	}, func(state iotmqtt.ConnectionState) {
		logger.WithField("state", state.String()).Info("connection state changed")
	})
	if err != nil {
		logger.WithError(err).Fatal("connect failed")
	}
	if !ok {
		logger.Fatal("connect did not initiate")
	}

	if _, err := client.Subscribe(statusTopic, 1, func(payload []byte) {
		logger.WithField("payload", string(payload)).Info("status message received")
	}, nil, nil); err != nil {
		logger.WithError(err).Warn("subscribe failed")
	}

	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	go runHeartbeat(heartbeatCtx, client, statusTopic, logger)

	shutdown.GracefulShutdown(10*time.Second, func(ctx context.Context) {
		cancelHeartbeat()
		if err := client.Disconnect(); err != nil {
			logger.WithError(err).Warn("disconnect returned an error")
		}
		client.Close()
	})
}

func runHeartbeat(ctx context.Context, client *iotmqtt.Client, topic string, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := client.Publish(topic, []byte("alive"), 0, false, nil); err != nil {
				logger.WithError(err).Warn("heartbeat publish failed")
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrUint16(key string, fallback uint16) uint16 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return fallback
	}
	return uint16(n)
}

// demoSession is a minimal iotmqtt.Session implementation used only by this
// demo binary. It frames nothing: PublishData and friends just log what
// would have been sent. A real deployment supplies its own Session backed
// by an actual MQTT codec.
type demoSession struct {
	cfg    iotmqtt.SessionConfig
	logger *logrus.Logger
	nextID uint16
}

func newDemoSession(cfg iotmqtt.SessionConfig, logger *logrus.Logger) *demoSession {
	return &demoSession{cfg: cfg, logger: logger}
}

func (s *demoSession) ConnectToStreams(r io.Reader, w io.Writer) error {
	s.logger.WithField("client_id", s.cfg.ClientID).Info("demo session streams attached")
	return nil
}

func (s *demoSession) SetEventHandler(h iotmqtt.EventHandler) {
	go h.OnConnected(false)
}

func (s *demoSession) Close() error      { return nil }
func (s *demoSession) Disconnect() error { return nil }

func (s *demoSession) PublishData(topic string, payload []byte, retain bool) error {
	s.logger.WithFields(logrus.Fields{"topic": topic, "qos": 0}).Debug("publish")
	return nil
}

func (s *demoSession) PublishDataAtLeastOnce(topic string, payload []byte, retain bool) (uint16, error) {
	s.logger.WithFields(logrus.Fields{"topic": topic, "qos": 1}).Debug("publish")
	s.nextID++
	return s.nextID, nil
}

func (s *demoSession) Subscribe(topic string, qos byte) (uint16, error) {
	s.logger.WithField("topic", topic).Debug("subscribe")
	s.nextID++
	return s.nextID, nil
}

func (s *demoSession) Unsubscribe(topic string) (uint16, error) {
	s.logger.WithField("topic", topic).Debug("unsubscribe")
	s.nextID++
	return s.nextID, nil
}
