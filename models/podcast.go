package models

// Episode is a playable unit of content, generated or ingested from RSS.
// The backend creates episodes asynchronously: until generation finishes the
// audio URL is empty and the duration is zero, and clients are expected to poll.
type Episode struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Link            string  `json:"link"`
	PublishedAt     string  `json:"publishedAt"`
	FetchedAt       string  `json:"fetchedAt"`
	ContentURL      string  `json:"contentUrl"`
	ImageURL        string  `json:"imageUrl"`
	AudioURL        string  `json:"audioUrl"`
	TranscriptURL   string  `json:"transcriptUrl"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Ready reports whether the episode can be handed to the playback engine.
func (e Episode) Ready() bool {
	return e.AudioURL != "" && e.DurationSeconds > 0
}

// EpisodeCard is the lightweight episode projection used in queues and
// recommendation lists.
type EpisodeCard struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	ImageURL        string  `json:"imageUrl"`
	PublishedAt     string  `json:"publishedAt"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Transition is a short generated clip bridging two episodes. It is generated
// lazily on request and is not ready until the backend fills in a duration.
type Transition struct {
	FromID          string  `json:"fromId"`
	ToID            string  `json:"toId"`
	AudioURL        string  `json:"audioUrl"`
	ImageURL        string  `json:"imageUrl"`
	TranscriptURL   string  `json:"transcriptUrl"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Ready reports whether the transition clip can be played.
func (t Transition) Ready() bool {
	return t.DurationSeconds > 0
}

// Playlist is a named collection of episodes. The id "like" is reserved and
// backs the like/dislike flags on the player.
type Playlist struct {
	PlaylistID  string `json:"playlistId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
}

// LikePlaylistID is the reserved playlist backing the like button.
const LikePlaylistID = "like"

// HistoryItem is one row of the backend listening history.
type HistoryItem struct {
	PodcastID             string  `json:"podcastId"`
	Title                 string  `json:"title"`
	ImageURL              string  `json:"imageUrl"`
	ListenedAt            string  `json:"listenedAt"`
	DurationSeconds       float64 `json:"durationSeconds"`
	Completed             bool    `json:"completed"`
	ListenDurationSeconds float64 `json:"listenDurationSeconds"`
	StopPositionSeconds   float64 `json:"stopPositionSeconds"`
	PlayCount             int     `json:"playCount"`
	Rate                  float64 `json:"rate"`
}
