package server

import (
	"encoding/json"
	"errors"
	"log"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"ringsim/internal/store"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 64
	maxMessagesPerSec = 20
	maxLabelLen       = 64
)

// Client represents a WebSocket viewer
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
	operator   string // "" = viewer only
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

func (c *Client) sendStatus(t string) {
	st := c.hub.runner.Status()
	st.Operator = c.operator != ""
	c.SendJSON(Envelope{T: t, Data: st})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("unmarshal error: %v", err)
		return
	}

	switch env.T {
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgStatus:
		c.sendStatus(MsgState)
	case MsgPause, MsgResume, MsgSave, MsgLoad:
		if c.operator == "" {
			c.sendError("not authenticated")
			return
		}
		c.handleControl(env.T, env.D)
	default:
		c.sendError("unknown message " + env.T)
	}
}

func (c *Client) handleAuth(data json.RawMessage) {
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	user, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.sendError("invalid token")
		return
	}
	c.operator = user
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{User: user}})
}

func (c *Client) handleControl(t string, data json.RawMessage) {
	r := c.hub.runner
	switch t {
	case MsgPause:
		r.Pause()
		log.Printf("control: %s paused the run", c.operator)
		c.sendStatus(MsgState)

	case MsgResume:
		r.Resume()
		log.Printf("control: %s resumed the run", c.operator)
		c.sendStatus(MsgState)

	case MsgSave:
		var msg SaveMsg
		if len(data) > 0 {
			if err := json.Unmarshal(data, &msg); err != nil {
				c.sendError("bad save request")
				return
			}
		}
		msg.Label = truncateLabel(msg.Label, maxLabelLen)
		saved, err := r.Save(msg.Label)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.SendJSON(Envelope{T: MsgSaved, Data: saved})

	case MsgLoad:
		var msg LoadMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("bad load request")
			return
		}
		if err := r.Load(msg.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.sendError("checkpoint not found")
				return
			}
			c.sendError(err.Error())
			return
		}
		c.sendStatus(MsgLoaded)
	}
}

// truncateLabel cuts s to at most n bytes without splitting a rune.
func truncateLabel(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
