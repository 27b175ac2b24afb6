package okx

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/recws-org/recws"
	"github.com/rs/zerolog"
)

const (
	defaultWsEndpoint = "wss://ws.okx.com:8443/ws/v5/public"

	// OKX closes connections idle for 30 seconds; a text "ping" keeps it
	// open.
	pingInterval = 20 * time.Second
)

type wsArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type wsOp struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

// wsFrame covers both event frames (subscribe acks, errors) and data
// frames.
type wsFrame struct {
	Event string          `json:"event,omitempty"`
	Msg   string          `json:"msg,omitempty"`
	Arg   wsArg           `json:"arg"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type subscriptionEntry struct {
	ch              chan wsFrame
	subscriberCount int
}

// StreamClient multiplexes channel subscriptions over one reconnecting
// websocket connection to the OKX public endpoint.
type StreamClient struct {
	endpoint string
	conn     *recws.RecConn
	log      zerolog.Logger
	done     chan struct{}

	mu            sync.Mutex
	subscriptions map[string]*subscriptionEntry
	closed        bool
}

func NewStreamClient(endpoint string, log zerolog.Logger) *StreamClient {
	if endpoint == "" {
		endpoint = defaultWsEndpoint
	}
	return &StreamClient{
		endpoint:      endpoint,
		log:           log.With().Str("exchange", Exchange).Str("component", "stream-client").Logger(),
		done:          make(chan struct{}),
		subscriptions: make(map[string]*subscriptionEntry),
	}
}

func (c *StreamClient) Connect() error {
	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
		NonVerbose:       true,
	}
	conn.Dial(c.endpoint, nil)
	c.conn = conn

	go c.readLoop()
	go c.pingLoop()
	return nil
}

func (c *StreamClient) Subscribe(arg wsArg) (<-chan wsFrame, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, nil, errors.New("stream client is not connected")
	}

	key := subscriptionKey(arg)
	if entry, ok := c.subscriptions[key]; ok {
		entry.subscriberCount++
		return entry.ch, func() { c.unsubscribe(arg) }, nil
	}

	entry := &subscriptionEntry{
		ch:              make(chan wsFrame, 64),
		subscriberCount: 1,
	}
	c.subscriptions[key] = entry

	c.log.Debug().Str("channel", arg.Channel).Str("inst_id", arg.InstID).Msg("subscribing")
	if err := c.conn.WriteJSON(wsOp{Op: "subscribe", Args: []wsArg{arg}}); err != nil {
		delete(c.subscriptions, key)
		return nil, nil, err
	}

	return entry.ch, func() { c.unsubscribe(arg) }, nil
}

func (c *StreamClient) unsubscribe(arg wsArg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := subscriptionKey(arg)
	entry, ok := c.subscriptions[key]
	if !ok {
		return
	}
	if entry.subscriberCount > 1 {
		entry.subscriberCount--
		return
	}

	close(entry.ch)
	delete(c.subscriptions, key)

	if err := c.conn.WriteJSON(wsOp{Op: "unsubscribe", Args: []wsArg{arg}}); err != nil {
		c.log.Warn().Err(err).Str("channel", arg.Channel).Str("inst_id", arg.InstID).
			Msg("failed to send unsubscribe")
	}
}

func (c *StreamClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	for key, entry := range c.subscriptions {
		close(entry.ch)
		delete(c.subscriptions, key)
	}
	c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *StreamClient) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.log.Warn().Err(err).Msg("read failed, waiting for reconnect")
			time.Sleep(time.Second)
			continue
		}

		if string(msg) == "pong" {
			continue
		}

		var frame wsFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.log.Warn().Err(err).Msg("unparsable frame")
			continue
		}

		switch frame.Event {
		case "error":
			c.log.Warn().Str("msg", frame.Msg).Msg("stream error frame")
			continue
		case "subscribe", "unsubscribe":
			continue
		}

		c.mu.Lock()
		entry, ok := c.subscriptions[subscriptionKey(frame.Arg)]
		c.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case entry.ch <- frame:
		default:
			c.log.Warn().Str("channel", frame.Arg.Channel).Str("inst_id", frame.Arg.InstID).
				Msg("subscriber is slow, dropping frame")
		}
	}
}

func (c *StreamClient) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				c.log.Warn().Err(err).Msg("ping failed")
			}
		}
	}
}

func subscriptionKey(arg wsArg) string {
	return arg.Channel + ":" + arg.InstID
}
