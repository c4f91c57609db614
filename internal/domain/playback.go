package domain

import "context"

// PlayState is the playback state machine position
type PlayState int

const (
	StateStopped PlayState = iota
	StateBuffering
	StatePlaying
	StatePaused
)

// String returns a human-readable representation of the play state
func (s PlayState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ConnState is the engine connection lifecycle
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is a snapshot of the single authoritative playback session
type Session struct {
	EpisodeID       string // empty when nothing is loaded
	PodcastID       string
	Title           string
	AudioURL        string
	DurationSeconds float64
	PositionSeconds float64
	Speed           float64
	PlayState       PlayState
	Connection      ConnState
	Err             error // last engine failure, cleared by the next successful load
}

// Loaded returns true if the session refers to an episode
func (s Session) Loaded() bool {
	return s.EpisodeID != ""
}

// LoadRequest asks the engine to open an episode. Generation is echoed back
// on the ready/error event for this load.
type LoadRequest struct {
	Episode    Episode
	StartAt    float64
	Speed      float64
	Generation uint64
}

// EngineEventKind distinguishes engine callbacks
type EngineEventKind int

const (
	EventReady EngineEventKind = iota
	EventPositionChanged
	EventEnded
	EventError
	EventDisconnected
)

func (k EngineEventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventPositionChanged:
		return "position"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// EngineEvent is a callback from the audio engine
type EngineEvent struct {
	Kind       EngineEventKind
	Generation uint64  // load generation the event belongs to (0 when unknown)
	Position   float64 // seconds (position events)
	Duration   float64 // seconds, when known (ready)
	Err        *EngineError
}

// EngineStatus is the engine's own view, queried after a reconnect
type EngineStatus struct {
	Loaded   bool
	MediaURL string
	Position float64
	Duration float64
	Paused   bool
	Speed    float64
}

// Engine acquires connections to the background audio engine
type Engine interface {
	Connect(ctx context.Context) (EngineConn, error)
}

// EngineConn is one live connection. Events is closed after the
// disconnected event.
type EngineConn interface {
	Load(ctx context.Context, req LoadRequest) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, positionSeconds float64) error
	SetSpeed(ctx context.Context, multiplier float64) error
	Status(ctx context.Context) (EngineStatus, error)
	Events() <-chan EngineEvent
	Close() error
}
