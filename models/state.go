package models

// PlaybackState is the read-only snapshot of the player exposed to the UI.
// Exactly one of Episode or Transition is set while media is loaded;
// IsPlayingTransition disambiguates which telemetry rules apply.
type PlaybackState struct {
	Episode             *Episode    `json:"episode,omitempty"`
	Transition          *Transition `json:"transition,omitempty"`
	IsPlaying           bool        `json:"isPlaying"`
	IsPlayingTransition bool        `json:"isPlayingTransition"`
	IsLoading           bool        `json:"isLoading"`
	Position            float64     `json:"position"`
	Duration            float64     `json:"duration"`
	ErrorMessage        string      `json:"errorMessage,omitempty"`

	Queue       []EpisodeCard `json:"queue"`
	QueueIndex  int           `json:"queueIndex"`
	HasNext     bool          `json:"hasNext"`
	HasPrevious bool          `json:"hasPrevious"`

	IsLiked      bool `json:"isLiked"`
	IsDisliked   bool `json:"isDisliked"`
	IsDownloaded bool `json:"isDownloaded"`
}
