package binance

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/recws-org/recws"
	"github.com/rs/zerolog"
)

const (
	defaultWsEndpoint = "wss://stream.binance.com:9443/stream"
	keepAliveTimeout  = 9 * time.Minute
)

// streamFrame is the combined-stream envelope: {"stream": "...", "data": {...}}.
type streamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

type subscriptionEntry struct {
	ch              chan json.RawMessage
	subscriberCount int
}

// StreamClient multiplexes many topic subscriptions over one reconnecting
// websocket connection to the Binance combined stream endpoint.
type StreamClient struct {
	endpoint string
	conn     *recws.RecConn
	log      zerolog.Logger

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
		subscriptions: make(map[string]*subscriptionEntry),
	}
}

func (c *StreamClient) Connect() error {
	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
		KeepAliveTimeout: keepAliveTimeout,
		NonVerbose:       true,
	}
	conn.Dial(c.endpoint, nil)
	c.conn = conn

	go c.readLoop()
	return nil
}

// Subscribe attaches to a stream topic, reusing the server-side subscription
// when another consumer already holds it.
func (c *StreamClient) Subscribe(topic string) (<-chan json.RawMessage, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, nil, errors.New("stream client is not connected")
	}

	if entry, ok := c.subscriptions[topic]; ok {
		entry.subscriberCount++
		return entry.ch, func() { c.unsubscribe(topic) }, nil
	}

	entry := &subscriptionEntry{
		ch:              make(chan json.RawMessage, 64),
		subscriberCount: 1,
	}
	c.subscriptions[topic] = entry

	c.log.Debug().Str("topic", topic).Msg("subscribing")
	if err := c.conn.WriteJSON(wsRequest{
		Method: "SUBSCRIBE",
		Params: []string{topic},
		ID:     requestID(),
	}); err != nil {
		delete(c.subscriptions, topic)
		return nil, nil, err
	}

	return entry.ch, func() { c.unsubscribe(topic) }, nil
}

func (c *StreamClient) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return
	}
	if entry.subscriberCount > 1 {
		entry.subscriberCount--
		return
	}

	close(entry.ch)
	delete(c.subscriptions, topic)

	if err := c.conn.WriteJSON(wsRequest{
		Method: "UNSUBSCRIBE",
		Params: []string{topic},
		ID:     requestID(),
	}); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("failed to send unsubscribe")
	}
}

func (c *StreamClient) Close() {
	c.mu.Lock()
	c.closed = true
	for topic, entry := range c.subscriptions {
		close(entry.ch)
		delete(c.subscriptions, topic)
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
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			// recws reconnects under the hood; wait it out
			c.log.Warn().Err(err).Msg("read failed, waiting for reconnect")
			time.Sleep(time.Second)
			continue
		}

		var frame streamFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.log.Warn().Err(err).Msg("unparsable frame")
			continue
		}
		if frame.Stream == "" {
			// subscription ack or error frame
			continue
		}

		c.mu.Lock()
		entry, ok := c.subscriptions[frame.Stream]
		c.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case entry.ch <- frame.Data:
		default:
			c.log.Warn().Str("topic", frame.Stream).Msg("subscriber is slow, dropping frame")
		}
	}
}

var reqRand = rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(os.Getpid())))
var reqRandMu sync.Mutex

func requestID() int {
	reqRandMu.Lock()
	defer reqRandMu.Unlock()
	return 10000 + reqRand.Intn(9989999)
}
