package player

import (
	"sync"

	"briefplay/models"
)

// Queue owns the ordered list of upcoming episodes plus the persistent
// recommendations cache the player falls back to once an explicit queue is
// exhausted. The two lists are never merged silently: the recommendations
// cache only becomes the live queue through an explicit Set.
type Queue struct {
	mu    sync.Mutex
	items []models.EpisodeCard
	index int

	recommendations []models.EpisodeCard
	fetchingMore    bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Set replaces the live queue. startIndex is clamped into bounds.
func (q *Queue) Set(items []models.EpisodeCard, startIndex int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]models.EpisodeCard(nil), items...)
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(q.items) {
		startIndex = len(q.items) - 1
	}
	if startIndex < 0 {
		startIndex = 0
	}
	q.index = startIndex
}

// Items returns a copy of the live queue.
func (q *Queue) Items() []models.EpisodeCard {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.EpisodeCard(nil), q.items...)
}

// Index returns the current position in the live queue.
func (q *Queue) Index() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index
}

// Current returns the card at the play head.
func (q *Queue) Current() (models.EpisodeCard, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index < 0 || q.index >= len(q.items) {
		return models.EpisodeCard{}, false
	}
	return q.items[q.index], true
}

// HasNext reports whether a forward move stays in bounds.
func (q *Queue) HasNext() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index < len(q.items)-1
}

// HasPrevious reports whether a backward move stays in bounds.
func (q *Queue) HasPrevious() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index > 0
}

// PeekNext returns the card after the play head without moving it.
func (q *Queue) PeekNext() (models.EpisodeCard, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index+1 >= len(q.items) {
		return models.EpisodeCard{}, false
	}
	return q.items[q.index+1], true
}

// Advance moves the play head forward. Out of bounds is a no-op.
func (q *Queue) Advance() (models.EpisodeCard, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index+1 >= len(q.items) {
		return models.EpisodeCard{}, false
	}
	q.index++
	return q.items[q.index], true
}

// Retreat moves the play head backward. Out of bounds is a no-op.
func (q *Queue) Retreat() (models.EpisodeCard, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index <= 0 || len(q.items) == 0 {
		return models.EpisodeCard{}, false
	}
	q.index--
	return q.items[q.index], true
}

// AtLastIndex reports whether the play head sits on the final card.
func (q *Queue) AtLastIndex() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0 && q.index == len(q.items)-1
}

// Recommendations returns a copy of the cached recommendations queue.
func (q *Queue) Recommendations() []models.EpisodeCard {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.EpisodeCard(nil), q.recommendations...)
}

// HasRecommendations reports whether the fallback cache is populated.
func (q *Queue) HasRecommendations() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.recommendations) > 0
}

// ClearRecommendations drops the cache. Called when the user selects a queue
// from outside the player, ahead of the background refresh.
func (q *Queue) ClearRecommendations() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recommendations = nil
}

// ReplaceRecommendations swaps in a freshly fetched cache.
func (q *Queue) ReplaceRecommendations(cards []models.EpisodeCard) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recommendations = append([]models.EpisodeCard(nil), cards...)
}

// AppendRecommendations merges a new page into the cache, deduplicated by id.
// When the live queue is the recommendations queue (id-sequence prefix of the
// cache), the unique cards are appended to the live queue too so playback can
// continue seamlessly. Returns whether the live queue was extended.
func (q *Queue) AppendRecommendations(cards []models.EpisodeCard) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]struct{}, len(q.recommendations))
	for _, c := range q.recommendations {
		seen[c.ID] = struct{}{}
	}
	var unique []models.EpisodeCard
	for _, c := range cards {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}
	if len(unique) == 0 {
		return false
	}

	wasPrefix := q.isRecommendationPrefixLocked()
	q.recommendations = append(q.recommendations, unique...)
	if wasPrefix {
		q.items = append(q.items, unique...)
		return true
	}
	return false
}

// IsRecommendationsQueue reports whether the live queue is the recommendations
// queue, by id-sequence equality.
func (q *Queue) IsRecommendationsQueue() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.recommendations) == 0 || len(q.items) != len(q.recommendations) {
		return false
	}
	for i := range q.items {
		if q.items[i].ID != q.recommendations[i].ID {
			return false
		}
	}
	return true
}

// isRecommendationPrefixLocked reports whether the live queue is a prefix of
// the recommendations cache by id sequence.
func (q *Queue) isRecommendationPrefixLocked() bool {
	if len(q.items) == 0 || len(q.items) > len(q.recommendations) {
		return false
	}
	for i := range q.items {
		if q.items[i].ID != q.recommendations[i].ID {
			return false
		}
	}
	return true
}

// TryBeginFetchMore claims the single in-flight slot for an auto-extend fetch.
func (q *Queue) TryBeginFetchMore() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fetchingMore {
		return false
	}
	q.fetchingMore = true
	return true
}

// EndFetchMore releases the in-flight slot.
func (q *Queue) EndFetchMore() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fetchingMore = false
}
