package server

import "encoding/json"

// Client -> Server message types
const (
	MsgAuth   = "auth"   // attach an operator token to the connection
	MsgPause  = "pause"  // stop stepping
	MsgResume = "resume" // resume stepping
	MsgSave   = "save"   // store a checkpoint
	MsgLoad   = "load"   // restore a checkpoint
	MsgStatus = "status" // ask for a status message
)

// Server -> Client message types
const (
	MsgWelcome = "welcome"
	MsgAuthOK  = "auth_ok"
	MsgState   = "state" // runner status after a control message
	MsgSaved   = "saved"
	MsgLoaded  = "loaded"
	MsgError   = "error"
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// AuthMsg carries a token obtained from /api/login
type AuthMsg struct {
	Token string `json:"token"`
}

// SaveMsg names a checkpoint
type SaveMsg struct {
	Label string `json:"label"`
}

// LoadMsg selects a stored checkpoint
type LoadMsg struct {
	ID int64 `json:"id"`
}

// ErrorMsg reports a rejected request
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// AuthOKMsg confirms operator access
type AuthOKMsg struct {
	User string `json:"user"`
}

// SavedMsg confirms a stored checkpoint
type SavedMsg struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Step  int    `json:"step"`
}

// Status describes the runner
type Status struct {
	System   string  `json:"system"`
	Boundary string  `json:"boundary"`
	Paused   bool    `json:"paused"`
	Step     int     `json:"step"`
	SimTime  float64 `json:"sim_time"`
	Active   int     `json:"active"`
	Viewers  int     `json:"viewers"`
	Operator bool    `json:"operator"` // set on the receiving connection
	Dropped  int     `json:"dropped_stats,omitempty"`
}

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// LoginResponse carries the operator token
type LoginResponse struct {
	Token string `json:"token"`
}

// Frame is broadcast as a binary msgpack message every few steps. Rings
// holds the ring population, Particles the particle system; the other
// slice is empty.
type Frame struct {
	Step      int             `msgpack:"s"`
	SimTime   float64         `msgpack:"t"`
	Rings     []RingState     `msgpack:"r,omitempty"`
	Particles []ParticleState `msgpack:"p,omitempty"`
	Debug     FrameDebug      `msgpack:"d"`
}

// RingState is one ring in a frame. X and Y hold the continuous polygon,
// so rings crossing a periodic border are drawn in one piece.
type RingState struct {
	UID   int       `msgpack:"id"`
	X     []float32 `msgpack:"x"`
	Y     []float32 `msgpack:"y"`
	CX    float32   `msgpack:"cx"`
	CY    float32   `msgpack:"cy"`
	Angle float32   `msgpack:"a"`
	Area  float32   `msgpack:"ar"`
}

// ParticleState is one particle in a frame
type ParticleState struct {
	X     float32 `msgpack:"x"`
	Y     float32 `msgpack:"y"`
	Angle float32 `msgpack:"a"`
}

// FrameDebug carries the counters of the broadcast step
type FrameDebug struct {
	Overlaps  int  `msgpack:"o"`
	Invasions int  `msgpack:"i"`
	ZeroSpeed int  `msgpack:"z"`
	HighVel   bool `msgpack:"hv,omitempty"`
}
