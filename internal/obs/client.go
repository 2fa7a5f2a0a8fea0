package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stagelink/tally-core/internal/device"
	"github.com/stagelink/tally-core/internal/infrastructure/config"
)

// Connection and request bounds.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 10 * time.Second

	defaultReconnectInitial = time.Second
	defaultReconnectMax     = 30 * time.Second

	// eventQueueSize bounds buffered events between the socket reader
	// and the event worker. Overflow drops the event; the worker
	// resynchronises from requests, not event history.
	eventQueueSize = 64
)

// ErrAuthRequired indicates OBS demands authentication but no password
// is configured.
var ErrAuthRequired = errors.New("obs requires authentication but no password is configured")

// Status describes the OBS connection for status surfaces and the
// obs-status broadcast.
type Status struct {
	Connected bool   `json:"connected"`
	Streaming bool   `json:"streaming"`
	Message   string `json:"message,omitempty"`
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client supervises the obs-websocket connection.
//
// Thread Safety: all exported methods are safe for concurrent use.
// Scene bookkeeping is confined to a per-session event worker goroutine.
type Client struct {
	cfg config.OBSConfig

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	streaming bool

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan responseData

	events chan eventData

	callbackMu     sync.RWMutex
	onSourceStates func(map[string]device.TallyState)
	onStatus       func(Status)

	logger Logger
}

// New creates an OBS client for the given configuration. Call Run to
// start the connection supervisor.
func New(cfg config.OBSConfig) *Client {
	return &Client{
		cfg:     cfg,
		pending: make(map[string]chan responseData),
		events:  make(chan eventData, eventQueueSize),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetOnSourceStates registers the callback receiving the derived tally
// state of every known source whenever the scene model changes.
func (c *Client) SetOnSourceStates(fn func(map[string]device.TallyState)) {
	c.callbackMu.Lock()
	c.onSourceStates = fn
	c.callbackMu.Unlock()
}

// SetOnStatus registers the callback receiving connection state changes.
func (c *Client) SetOnStatus(fn func(Status)) {
	c.callbackMu.Lock()
	c.onStatus = fn
	c.callbackMu.Unlock()
}

// Connected reports whether an identified session is active.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{Connected: c.connected, Streaming: c.streaming}
}

// Run connects to OBS and keeps the session alive until the context is
// cancelled, reconnecting with exponential backoff after any failure.
func (c *Client) Run(ctx context.Context) {
	initial := secondsOr(c.cfg.ReconnectInitialDelay, defaultReconnectInitial)
	max := secondsOr(c.cfg.ReconnectMaxDelay, defaultReconnectMax)
	backoff := initial

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Warn("obs session ended", "error", err, "retry_in", backoff.String())
		}
		c.emitStatus(Status{Connected: false, Message: "disconnected"})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > max {
			backoff = max
		}
	}
}

func secondsOr(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// session runs one connect-identify-read cycle. It returns when the
// socket dies or the context is cancelled.
func (c *Client) session(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)}
	dialer := websocket.Dialer{HandshakeTimeout: defaultConnectTimeout}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing obs at %s: %w", u.Host, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	if err := c.identify(conn); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.streaming = false
		c.mu.Unlock()
	}()

	c.logger.Info("obs connection identified", "host", u.Host)
	c.emitStatus(Status{Connected: true, Message: "connected"})

	sessionCtx, stop := context.WithCancel(ctx)
	defer stop()

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.eventWorker(sessionCtx)
	}()
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading obs socket: %w", err)
		}
		c.route(data)
	}
}

// identify performs the Hello/Identify handshake on a fresh socket.
func (c *Client) identify(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(defaultConnectTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if env.Op != opHello {
		return fmt.Errorf("expected hello (op %d), got op %d", opHello, env.Op)
	}
	var hello helloData
	if err := json.Unmarshal(env.D, &hello); err != nil {
		return fmt.Errorf("decoding hello: %w", err)
	}

	identify := identifyData{
		RPCVersion:         rpcVersion,
		EventSubscriptions: eventSubscriptions,
	}
	if hello.Authentication != nil {
		if c.cfg.Password == "" {
			return ErrAuthRequired
		}
		identify.Authentication = computeAuth(c.cfg.Password,
			hello.Authentication.Salt, hello.Authentication.Challenge)
	}

	if err := writeEnvelope(conn, opIdentify, identify); err != nil {
		return fmt.Errorf("sending identify: %w", err)
	}

	if err := conn.ReadJSON(&env); err != nil {
		return fmt.Errorf("reading identify response: %w", err)
	}
	if env.Op != opIdentified {
		return fmt.Errorf("identify rejected (op %d)", env.Op)
	}
	return nil
}

// route dispatches one inbound frame from the read loop.
func (c *Client) route(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("discarding malformed obs frame", "error", err)
		return
	}

	switch env.Op {
	case opEvent:
		var ev eventData
		if err := json.Unmarshal(env.D, &ev); err != nil {
			c.logger.Warn("discarding malformed obs event", "error", err)
			return
		}
		select {
		case c.events <- ev:
		default:
			c.logger.Warn("obs event queue full, dropping event", "type", ev.EventType)
		}
	case opRequestResponse:
		var resp responseData
		if err := json.Unmarshal(env.D, &resp); err != nil {
			c.logger.Warn("discarding malformed obs response", "error", err)
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.RequestID]
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// call issues a request and waits for its response or timeout.
func (c *Client) call(ctx context.Context, requestType string, payload, out any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.New("obs not connected")
	}

	id := uuid.NewString()
	ch := make(chan responseData, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := requestData{RequestType: requestType, RequestID: id, RequestData: payload}
	if err := c.send(conn, opRequest, req); err != nil {
		return fmt.Errorf("sending %s: %w", requestType, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultRequestTimeout):
		return fmt.Errorf("%s: no response from obs", requestType)
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return fmt.Errorf("%s rejected by obs (code %d): %s",
				requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		if out != nil && len(resp.ResponseData) > 0 {
			if err := json.Unmarshal(resp.ResponseData, out); err != nil {
				return fmt.Errorf("decoding %s response: %w", requestType, err)
			}
		}
		return nil
	}
}

// send marshals and writes one frame. The write lock serialises callers;
// gorilla connections permit only one concurrent writer.
func (c *Client) send(conn *websocket.Conn, op int, d any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeEnvelope(conn, op, d)
}

func writeEnvelope(conn *websocket.Conn, op int, d any) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return conn.WriteJSON(envelope{Op: op, D: data})
}

// eventWorker owns the scene model for one session: it bootstraps the
// current program/preview layout, then folds events into it, emitting a
// fresh source-state map after every change.
func (c *Client) eventWorker(ctx context.Context) {
	state := newSceneState()

	// Discard events queued by a previous session.
	for {
		select {
		case <-c.events:
			continue
		default:
		}
		break
	}

	if err := c.bootstrap(ctx, state); err != nil {
		if ctx.Err() == nil {
			c.logger.Error("obs scene bootstrap failed", "error", err)
		}
	}
	c.emitStates(state)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			c.applyEvent(ctx, state, ev)
		}
	}
}

// bootstrap queries the full scene layout after identify.
func (c *Client) bootstrap(ctx context.Context, state *sceneState) error {
	var studio struct {
		StudioModeEnabled bool `json:"studioModeEnabled"`
	}
	if err := c.call(ctx, "GetStudioModeEnabled", nil, &studio); err != nil {
		return err
	}
	state.studioMode = studio.StudioModeEnabled

	var program struct {
		SceneName string `json:"currentProgramSceneName"`
	}
	if err := c.call(ctx, "GetCurrentProgramScene", nil, &program); err != nil {
		return err
	}
	state.program = program.SceneName

	if state.studioMode {
		var preview struct {
			SceneName string `json:"currentPreviewSceneName"`
		}
		if err := c.call(ctx, "GetCurrentPreviewScene", nil, &preview); err != nil {
			return err
		}
		state.preview = preview.SceneName
	}

	var scenes struct {
		Scenes []struct {
			SceneName string `json:"sceneName"`
		} `json:"scenes"`
	}
	if err := c.call(ctx, "GetSceneList", nil, &scenes); err != nil {
		return err
	}
	for _, scene := range scenes.Scenes {
		if err := c.fetchSources(ctx, state, scene.SceneName); err != nil {
			c.logger.Warn("fetching scene sources failed",
				"scene", scene.SceneName, "error", err)
		}
	}
	return nil
}

// fetchSources loads a scene's source names into the model.
func (c *Client) fetchSources(ctx context.Context, state *sceneState, scene string) error {
	var items struct {
		SceneItems []struct {
			SourceName string `json:"sourceName"`
		} `json:"sceneItems"`
	}
	if err := c.call(ctx, "GetSceneItemList", map[string]any{"sceneName": scene}, &items); err != nil {
		return err
	}
	sources := make([]string, 0, len(items.SceneItems))
	for _, item := range items.SceneItems {
		sources = append(sources, item.SourceName)
	}
	state.setSources(scene, sources)
	return nil
}

// applyEvent folds one obs event into the scene model.
func (c *Client) applyEvent(ctx context.Context, state *sceneState, ev eventData) {
	switch ev.EventType {
	case "CurrentProgramSceneChanged":
		var d struct {
			SceneName string `json:"sceneName"`
		}
		if err := json.Unmarshal(ev.EventData, &d); err != nil {
			return
		}
		state.program = d.SceneName
		c.ensureScene(ctx, state, d.SceneName)
		c.emitStates(state)

	case "CurrentPreviewSceneChanged":
		var d struct {
			SceneName string `json:"sceneName"`
		}
		if err := json.Unmarshal(ev.EventData, &d); err != nil {
			return
		}
		state.preview = d.SceneName
		c.ensureScene(ctx, state, d.SceneName)
		c.emitStates(state)

	case "StudioModeStateChanged":
		var d struct {
			StudioModeEnabled bool `json:"studioModeEnabled"`
		}
		if err := json.Unmarshal(ev.EventData, &d); err != nil {
			return
		}
		state.studioMode = d.StudioModeEnabled
		if !d.StudioModeEnabled {
			state.preview = ""
		}
		c.emitStates(state)

	case "SceneTransitionStarted":
		if !state.transitioning {
			state.transitioning = true
			c.emitStates(state)
		}

	case "SceneTransitionEnded", "SceneTransitionVideoEnded":
		if state.transitioning {
			state.transitioning = false
			c.emitStates(state)
		}

	case "CurrentSceneCollectionChanged":
		// A collection swap replaces every scene; the old model is
		// useless and must not bleed into the new layout.
		state.reset()
		if err := c.bootstrap(ctx, state); err != nil {
			if ctx.Err() == nil {
				c.logger.Error("obs scene bootstrap failed", "error", err)
			}
		}
		c.emitStates(state)

	case "SceneItemCreated", "SceneItemRemoved":
		var d struct {
			SceneName string `json:"sceneName"`
		}
		if err := json.Unmarshal(ev.EventData, &d); err != nil {
			return
		}
		if err := c.fetchSources(ctx, state, d.SceneName); err == nil {
			c.emitStates(state)
		}

	case "StreamStateChanged":
		var d struct {
			OutputActive bool `json:"outputActive"`
		}
		if err := json.Unmarshal(ev.EventData, &d); err != nil {
			return
		}
		c.mu.Lock()
		c.streaming = d.OutputActive
		c.mu.Unlock()
		c.emitStatus(c.Status())
	}
}

// ensureScene fetches a scene's sources if they are not yet known.
func (c *Client) ensureScene(ctx context.Context, state *sceneState, scene string) {
	if state.knowsScene(scene) {
		return
	}
	if err := c.fetchSources(ctx, state, scene); err != nil {
		c.logger.Warn("fetching scene sources failed", "scene", scene, "error", err)
	}
}

func (c *Client) emitStates(state *sceneState) {
	c.callbackMu.RLock()
	fn := c.onSourceStates
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(state.states())
	}
}

func (c *Client) emitStatus(status Status) {
	c.callbackMu.RLock()
	fn := c.onStatus
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(status)
	}
}
