package core

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetlink/iotmqtt/internal/reconnect"
	"github.com/fleetlink/iotmqtt/internal/sigv4"
	"github.com/fleetlink/iotmqtt/internal/transport"
)

const (
	sdkPlatform = "go"
	sdkVersion  = "1.0.0"

	// reconnectSemWait is the safety ceiling on acquiring the reconnect
	// scheduling guard. It is not expected to ever be hit in practice; it
	// exists so a wedged scheduler cannot hang a caller forever.
	reconnectSemWait = 1800 * time.Second
)

// dialDirectTLS and dialSignedWebSocket are package-level indirections over
// the transport package's dialers so tests can substitute fakes without a
// real socket or broker. Production code never reassigns these.
var (
	dialDirectTLS       = transport.DialDirectTLS
	dialSignedWebSocket = transport.DialSignedWebSocket
)

// Controller is the connection lifecycle state machine. It owns at most
// one Session and one transport Duplex at a time, drives the reconnect
// backoff, and fans user-facing callbacks out to a background worker pool
// so they never run on whatever goroutine the Session collaborator
// reports events from.
//
// Controller implements EventHandler itself — the Session holds a
// non-owning reference to it for the life of one connection attempt.
type Controller struct {
	mu sync.Mutex

	sessionFactory SessionFactory
	logger         *logrus.Logger

	subs *SubscriptionRegistry
	acks *ackRegistry
	pool *workerPool

	cfg            ClientConfig
	spec           TransportSpec
	statusCallback func(ConnectionState)

	status                 ConnectionState
	userDidIssueConnect    bool
	userDidIssueDisconnect bool
	cleanSessionEffective  bool

	session Session
	duplex  transport.Duplex

	backoff        *reconnect.Backoff
	reconnectTimer *time.Timer
	reconnectSem   chan struct{}
	ageClock       *ageClock

	// generation increments on every Connect/Disconnect transition. Any
	// asynchronous operation in flight (credentials fetch, reconnect
	// timer fire) captures the generation it started under and discards
	// its result if the generation has since moved on — this is how a
	// disconnect-during-async-fetch is made safe without plumbing a
	// context into every collaborator.
	generation uint64

	connectCtx    context.Context
	connectCancel context.CancelFunc
}

// NewController creates a Controller. logger may be nil, in which case
// logrus.StandardLogger() is used, matching the rest of the fleet
// codebase's logging convention.
func NewController(sessionFactory SessionFactory, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{
		sessionFactory: sessionFactory,
		logger:         logger,
		subs:           NewSubscriptionRegistry(),
		acks:           newAckRegistry(),
		pool:           newWorkerPool(defaultWorkerPoolSize),
		status:         StateDisconnected,
		reconnectSem:   make(chan struct{}, 1),
	}
}

// Connect initiates a connection. It returns false without issuing any I/O
// if a mandatory input is missing (client id, or — for SignedWebSocket — a
// credentials provider). It returns ErrAlreadyConnecting if a Connect is
// already in progress or established.
func (c *Controller) Connect(cfg ClientConfig, spec TransportSpec, statusCallback func(ConnectionState)) (bool, error) {
	c.mu.Lock()
	if c.userDidIssueConnect {
		c.mu.Unlock()
		return false, ErrAlreadyConnecting
	}
	if cfg.ClientID == "" {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: client id is required", ErrConfiguration)
	}
	if ws, ok := spec.(SignedWebSocketSpec); ok && ws.CredentialsProvider == nil {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: credentials provider is required for SignedWebSocket", ErrConfiguration)
	}

	c.cfg = cfg
	c.spec = spec
	c.statusCallback = statusCallback
	c.userDidIssueConnect = true
	c.userDidIssueDisconnect = false
	c.cleanSessionEffective = cfg.CleanSession
	c.backoff = reconnect.NewBackoff(cfg.BaseReconnectTime, cfg.MaximumReconnectTime)
	c.generation++
	generation := c.generation
	c.connectCtx, c.connectCancel = context.WithCancel(context.Background())
	ctx := c.connectCtx

	if cfg.CleanSession {
		c.subs.Clear()
	}
	c.setStatusLocked(StateConnecting)
	c.mu.Unlock()

	// openTransport's DirectTLS branch runs synchronously, so a
	// configuration failure (most commonly a missing certificate
	// identity) is visible here immediately; the SignedWebSocket branch
	// always returns nil because its dial happens on a background
	// goroutine and is reported asynchronously via the status callback
	// instead. A configuration failure is never retried: it is reported
	// to the caller as a false result, not scheduled onto the reconnect
	// loop.
	if err := c.openTransport(ctx, generation); err != nil {
		return false, err
	}
	return true, nil
}

// Disconnect is idempotent: a second call after the first is a no-op.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if c.userDidIssueDisconnect {
		c.mu.Unlock()
		return nil
	}
	c.userDidIssueDisconnect = true
	c.userDidIssueConnect = false
	c.generation++

	c.cancelReconnectLocked()
	if c.ageClock != nil {
		ac := c.ageClock
		c.ageClock = nil
		c.mu.Unlock()
		ac.stop()
		c.mu.Lock()
	}
	if c.connectCancel != nil {
		c.connectCancel()
	}

	session := c.session
	duplex := c.duplex
	c.session = nil
	c.duplex = nil
	c.setStatusLocked(StateDisconnected)
	c.mu.Unlock()

	c.acks.Purge()

	var err error
	if session != nil {
		err = session.Disconnect()
	} else if duplex != nil {
		err = duplex.Close()
	}
	return err
}

// Close releases the Controller's background worker pool. Call once the
// Controller is no longer needed, after Disconnect.
func (c *Controller) Close() {
	c.pool.Stop()
}

// Publish issues a publish at the requested QoS. ackCallback is only valid
// for QoS 1 and is bound in the ack registry; it is an ErrInvalidArgument
// to supply one at QoS 0.
func (c *Controller) Publish(topic string, payload []byte, qos byte, retain bool, ackCallback func()) (uint16, error) {
	session, err := c.connectedSession()
	if err != nil {
		return 0, err
	}
	if qos > 1 {
		return 0, fmt.Errorf("%w: qos must be 0 or 1", ErrInvalidArgument)
	}
	if qos == 0 {
		if ackCallback != nil {
			return 0, fmt.Errorf("%w: ack callback not valid for qos 0", ErrInvalidArgument)
		}
		return 0, session.PublishData(topic, payload, retain)
	}

	packetID, err := session.PublishDataAtLeastOnce(topic, payload, retain)
	if err != nil {
		return 0, err
	}
	c.acks.Bind(packetID, ackCallback)
	return packetID, nil
}

// Subscribe registers filter with the given QoS and at least one callback,
// then issues the MQTT SUBSCRIBE. ackCallback is optional and, as for
// Publish, an ErrInvalidArgument at QoS 0.
func (c *Controller) Subscribe(filter string, qos byte, simple SimpleCallback, extended ExtendedCallback, ackCallback func()) (uint16, error) {
	session, err := c.connectedSession()
	if err != nil {
		return 0, err
	}
	if qos > 1 {
		return 0, fmt.Errorf("%w: qos must be 0 or 1", ErrInvalidArgument)
	}
	if qos == 0 && ackCallback != nil {
		return 0, fmt.Errorf("%w: ack callback not valid for qos 0", ErrInvalidArgument)
	}

	packetID, err := session.Subscribe(filter, qos)
	if err != nil {
		return 0, err
	}
	c.subs.Put(SubscriptionEntry{Filter: filter, QoS: qos, Simple: simple, Extended: extended})
	c.acks.Bind(packetID, ackCallback)
	return packetID, nil
}

// Unsubscribe removes filter's registration and issues the MQTT
// UNSUBSCRIBE. ackCallback is optional.
func (c *Controller) Unsubscribe(filter string, ackCallback func()) (uint16, error) {
	session, err := c.connectedSession()
	if err != nil {
		return 0, err
	}

	packetID, err := session.Unsubscribe(filter)
	if err != nil {
		return 0, err
	}
	c.subs.Remove(filter)
	c.acks.Bind(packetID, ackCallback)
	return packetID, nil
}

func (c *Controller) connectedSession() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userDidIssueDisconnect {
		return nil, ErrAlreadyDisconnected
	}
	if !c.userDidIssueConnect || c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session, nil
}

// Status reports the current lifecycle state.
func (c *Controller) Status() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) setStatusLocked(s ConnectionState) {
	c.status = s
	cb := c.statusCallback
	if cb == nil {
		return
	}
	c.pool.Submit(func() { cb(s) })
}

// openTransport dials the configured TransportSpec and, on success, hands
// the resulting duplex to a freshly constructed Session. For DirectTLS the
// dial is synchronous; for SignedWebSocket the credentials fetch, signing,
// and dial all happen on a background goroutine.
//
// The returned error is only ever non-nil for a configuration failure that
// is visible synchronously: on the DirectTLS path (e.g. a missing
// certificate identity), or a TransportSpec of no recognized kind —
// per spec.md §7 these are never retried, so openTransport reports them by
// return value instead of handing them to handleTransportFailure/
// scheduleReconnect. Every other failure (transient dial errors, and
// anything on the asynchronous SignedWebSocket path) is reported through
// the status callback and the reconnect loop instead, so this always
// returns nil for them.
func (c *Controller) openTransport(ctx context.Context, generation uint64) error {
	switch spec := c.currentSpec().(type) {
	case DirectTLSSpec:
		duplex, err := c.dialDirectTLSSpec(ctx, spec)
		if err != nil {
			c.logger.WithFields(logrus.Fields{"client_id": c.cfg.ClientID, "error": err}).
				Warn("iotmqtt: direct tls dial failed")
			if errors.Is(err, ErrConfiguration) {
				c.abortConfigurationError()
				return err
			}
			c.handleTransportFailure(generation, err)
			return nil
		}
		c.startSession(generation, duplex)
		return nil

	case SignedWebSocketSpec:
		go c.openSignedWebSocket(ctx, generation, spec)
		return nil

	default:
		err := fmt.Errorf("%w: unrecognized transport spec", ErrConfiguration)
		c.abortConfigurationError()
		return err
	}
}

// abortConfigurationError unwinds the Connect attempt the same way a
// completed Disconnect would, except there is no Session/transport to tear
// down yet — only a ConfigurationError can reach this before either one was
// created. It clears userDidIssueConnect so a subsequent Connect call is
// free to try again (e.g. with a corrected CertificateProvider), and it
// never installs a reconnect timer.
func (c *Controller) abortConfigurationError() {
	c.mu.Lock()
	c.userDidIssueConnect = false
	c.cancelReconnectLocked()
	c.setStatusLocked(StateDisconnected)
	c.mu.Unlock()
	c.acks.Purge()
}

func (c *Controller) currentSpec() TransportSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

func (c *Controller) dialDirectTLSSpec(ctx context.Context, spec DirectTLSSpec) (transport.Duplex, error) {
	params := transport.DirectTLSParams{
		Host:               spec.Host,
		Port:               spec.Port,
		InsecureSkipVerify: spec.AllowInsecureSkipVerify,
	}
	if spec.CertificateProvider != nil {
		cert, found, err := spec.CertificateProvider.ClientCertificate()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if found {
			params.ClientCertificates = []tls.Certificate{cert}
			params.InsecureSkipVerify = false
		} else if !spec.AllowInsecureSkipVerify {
			return nil, fmt.Errorf("%w: certificate identity not found", ErrConfiguration)
		}
	}
	return dialDirectTLS(ctx, params)
}

func (c *Controller) openSignedWebSocket(ctx context.Context, generation uint64, spec SignedWebSocketSpec) {
	creds, err := spec.CredentialsProvider.Retrieve(ctx)
	if c.staleGeneration(generation) {
		return
	}
	if err != nil {
		c.handleTransportFailure(generation, fmt.Errorf("credentials provider: %w", err))
		return
	}

	signedURL, err := sigv4.SignWebSocketURL(sigv4.URLParams{
		Host:        spec.Endpoint,
		Path:        "/mqtt",
		Region:      spec.Region,
		Credentials: sigv4.Credentials{AccessKeyID: creds.AccessKeyID, SecretAccessKey: creds.SecretAccessKey, SessionToken: creds.SessionToken},
	})
	if err != nil {
		c.handleTransportFailure(generation, err)
		return
	}

	duplex, err := dialSignedWebSocket(ctx, signedURL, c.logger)
	if c.staleGeneration(generation) {
		if duplex != nil {
			duplex.Close()
		}
		return
	}
	if err != nil {
		c.handleTransportFailure(generation, err)
		return
	}
	c.startSession(generation, duplex)
}

func (c *Controller) staleGeneration(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userDidIssueDisconnect || c.generation != generation
}

func (c *Controller) startSession(generation uint64, duplex transport.Duplex) {
	if c.staleGeneration(generation) {
		duplex.Close()
		return
	}

	c.mu.Lock()
	username := c.buildUsernameLocked()
	sessCfg := SessionConfig{
		ClientID:     c.cfg.ClientID,
		Username:     username,
		KeepAlive:    c.cfg.KeepAlive,
		CleanSession: c.cleanSessionEffective,
		Will:         c.cfg.Will,
	}
	c.duplex = duplex
	session := c.sessionFactory(sessCfg)
	session.SetEventHandler(c)
	c.session = session
	c.mu.Unlock()

	if err := session.ConnectToStreams(duplex, duplex); err != nil {
		c.handleTransportFailure(generation, err)
	}
}

func (c *Controller) buildUsernameLocked() string {
	if !c.cfg.MetricsEnabled {
		return ""
	}
	return fmt.Sprintf("?SDK=%s&Version=%s", sdkPlatform, sdkVersion)
}

func (c *Controller) handleTransportFailure(generation uint64, err error) {
	if c.staleGeneration(generation) {
		return
	}
	c.mu.Lock()
	c.setStatusLocked(StateConnectionError)
	c.mu.Unlock()
	c.scheduleReconnect(generation, err)
}

// OnConnected implements EventHandler.
func (c *Controller) OnConnected(sessionPresent bool) {
	c.mu.Lock()
	c.setStatusLocked(StateConnected)
	minAge := c.cfg.MinimumConnectionAge
	backoff := c.backoff
	autoResub := c.cfg.AutoResubscribe
	c.ageClock = startAgeClock(minAge, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if backoff != nil {
			backoff.MarkStable()
		}
	})
	c.mu.Unlock()

	if autoResub {
		c.resubscribeAll()
	}
}

func (c *Controller) resubscribeAll() {
	for _, entry := range c.subs.Snapshot() {
		entry := entry
		session, err := c.connectedSession()
		if err != nil {
			return
		}
		if _, err := session.Subscribe(entry.Filter, entry.QoS); err != nil {
			c.logger.WithFields(logrus.Fields{"filter": entry.Filter, "error": err}).
				Warn("iotmqtt: auto-resubscribe failed")
		}
	}
}

// OnConnectionRefused implements EventHandler. No automatic retry follows a
// refusal — the caller decides whether to Disconnect and try different
// credentials.
func (c *Controller) OnConnectionRefused(reason byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.WithFields(logrus.Fields{"client_id": c.cfg.ClientID, "reason": reason}).
		Warn("iotmqtt: connection refused")
	c.setStatusLocked(StateConnectionRefused)
}

// OnConnectionClosed implements EventHandler.
func (c *Controller) OnConnectionClosed() {
	c.onTerminalSessionEvent(nil)
}

// OnConnectionError implements EventHandler.
func (c *Controller) OnConnectionError(err error) {
	c.onTerminalSessionEvent(err)
}

// OnProtocolError implements EventHandler. A protocol error always results
// in a full Disconnect — no retry.
func (c *Controller) OnProtocolError(err error) {
	c.mu.Lock()
	c.logger.WithFields(logrus.Fields{"client_id": c.cfg.ClientID, "error": err}).
		Error("iotmqtt: protocol error")
	c.setStatusLocked(StateProtocolError)
	c.mu.Unlock()
	c.Disconnect()
}

func (c *Controller) onTerminalSessionEvent(err error) {
	c.mu.Lock()
	if c.ageClock != nil {
		ac := c.ageClock
		c.ageClock = nil
		c.mu.Unlock()
		ac.stop()
		c.mu.Lock()
	}

	if c.userDidIssueDisconnect {
		c.subs.Clear()
		c.setStatusLocked(StateDisconnected)
		c.mu.Unlock()
		return
	}

	generation := c.generation
	c.setStatusLocked(StateConnectionError)
	c.mu.Unlock()

	c.scheduleReconnect(generation, err)
}

// scheduleReconnect installs a one-shot reconnect timer. The reconnectSem
// channel implements the mutual-exclusion guard: only one goroutine at a
// time may decide whether a timer needs installing, and the wait is
// bounded so a stuck scheduler cannot hang a caller forever.
func (c *Controller) scheduleReconnect(generation uint64, cause error) {
	select {
	case c.reconnectSem <- struct{}{}:
	case <-time.After(reconnectSemWait):
		c.logger.Error("iotmqtt: timed out acquiring reconnect scheduling guard")
		return
	}
	defer func() { <-c.reconnectSem }()

	c.mu.Lock()
	if c.generation != generation || c.userDidIssueDisconnect {
		c.mu.Unlock()
		return
	}
	if c.reconnectTimer != nil || c.status == StateConnected {
		c.mu.Unlock()
		return
	}

	c.cleanSessionEffective = false
	delay := c.backoff.Next()
	c.logger.WithFields(logrus.Fields{
		"client_id": c.cfg.ClientID,
		"next_wait": delay,
		"cause":     cause,
	}).Info("iotmqtt: scheduling reconnect")

	ctx := c.connectCtx
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		if c.staleGeneration(generation) {
			return
		}
		c.openTransport(ctx, generation)
	})
	staleSession, staleDuplex := c.session, c.duplex
	c.session, c.duplex = nil, nil
	c.mu.Unlock()

	// Release the failed connection's session and streams before the next
	// attempt opens new ones.
	if staleSession != nil {
		staleSession.Close()
	} else if staleDuplex != nil {
		staleDuplex.Close()
	}
}

func (c *Controller) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.backoff != nil {
		c.backoff = reconnect.NewBackoff(c.cfg.BaseReconnectTime, c.cfg.MaximumReconnectTime)
	}
}

// OnMessage implements EventHandler, dispatching to every registered filter
// whose pattern matches topic.
func (c *Controller) OnMessage(topic string, payload []byte) {
	for _, entry := range c.subs.MatchingEntries(topic) {
		entry := entry
		if entry.Simple != nil {
			c.pool.Submit(func() { entry.Simple(payload) })
		}
		if entry.Extended != nil {
			c.pool.Submit(func() { entry.Extended(c, topic, payload) })
		}
	}
}

// OnAck implements EventHandler.
func (c *Controller) OnAck(packetID uint16) {
	cb, ok := c.acks.Resolve(packetID)
	if !ok {
		return
	}
	c.pool.Submit(cb)
}
