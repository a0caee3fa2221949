package models

// Action names recorded in a listening session.
const (
	ActionPlay          = "play"
	ActionPause         = "pause"
	ActionSeek          = "seek"
	ActionSkipForward   = "skip_forward"
	ActionSkipBackward  = "skip_backward"
	ActionLike          = "like"
	ActionUnlike        = "unlike"
	ActionDislike       = "dislike"
	ActionRemoveDislike = "remove_dislike"
	ActionAddToPlaylist = "add_to_playlist"
	ActionDownload      = "download"
	ActionCompleted     = "completed"
	ActionSessionStart  = "session_start"
	ActionSessionEnd    = "session_end"
)

// ActionDetails carries the optional position or playlist context of an action.
type ActionDetails struct {
	From       *float64 `json:"from,omitempty"`
	To         *float64 `json:"to,omitempty"`
	PlaylistID string   `json:"playlistId,omitempty"`
}

// UserAction is one discrete user interaction within a session.
type UserAction struct {
	Timestamp int64          `json:"timestamp"`
	Action    string         `json:"action"`
	PodcastID string         `json:"podcast_id"`
	Details   *ActionDetails `json:"details,omitempty"`
}

// PositionSample is a periodic playback position reading.
type PositionSample struct {
	Time     int64   `json:"time"`
	Position float64 `json:"position"`
}

// SessionReport is the single record submitted when a listening session ends.
type SessionReport struct {
	PodcastID             string           `json:"podcast_id"`
	Actions               []UserAction     `json:"actions"`
	ListenedSeconds       []int            `json:"listened_seconds"`
	ListenDurationSeconds float64          `json:"listen_duration_seconds"`
	TotalDurationSeconds  float64          `json:"total_duration_seconds"`
	CoveragePercentage    float64          `json:"coverage_percentage"`
	LastPosition          float64          `json:"last_position"`
	PositionLog           []PositionSample `json:"position_log"`
	ListeningTime         int64            `json:"listening_time"`
	AutoPlay              bool             `json:"auto_play"`
}
