package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/choreweek/internal/rotation"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// followCommand is the only message a client sends: it switches the week
// whose snapshots the client receives. An empty week follows every week.
type followCommand struct {
	Type string `json:"type"`
	Week string `json:"week"`
}

// Client is one connection following a household and, optionally, one week
// of it.
type Client struct {
	hub       *Hub
	conn      *ws.Conn
	household string
	send      chan []byte

	mu   sync.Mutex
	week string

	// onFollow runs after the week changes, to queue that week's current state.
	onFollow func(ctx context.Context, week string)
}

// NewClient creates a Client for household, initially following week.
func NewClient(hub *Hub, conn *ws.Conn, household, week string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		household: household,
		week:      week,
		send:      make(chan []byte, sendBufferSize),
	}
}

// Week returns the week the client follows.
func (c *Client) Week() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.week
}

func (c *Client) follow(week string) {
	c.mu.Lock()
	c.week = week
	c.mu.Unlock()
}

// wants reports whether msg belongs to what the client follows.
func (c *Client) wants(msg Message) bool {
	if msg.Household != c.household {
		return false
	}
	if msg.Week == "" {
		return true
	}
	week := c.Week()
	return week == "" || week == msg.Week
}

// Run starts the write pump and runs the read pump. The client must already
// be registered. It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump handles follow commands and ignores anything else. It returns
// when the connection closes.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			continue
		}
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	var cmd followCommand
	if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type != "follow" {
		c.hub.logger.Debug("websocket message ignored", "household", c.household)
		return
	}
	if cmd.Week != "" && !rotation.ValidWeekKey(cmd.Week) {
		c.hub.logger.Debug("websocket follow with invalid week", "household", c.household, "week", cmd.Week)
		return
	}
	c.follow(cmd.Week)
	if c.onFollow != nil && cmd.Week != "" {
		c.onFollow(ctx, cmd.Week)
	}
}

// writePump drains the send channel and pings periodically to detect stale
// connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
