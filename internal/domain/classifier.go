package domain

import "strings"

// recentPostWindow bounds how many of the most recent posts are inspected.
const recentPostWindow = 5

// DefaultKeywords are the terms that mark a profile as event-like when they
// appear anywhere in the bio or recent captions.
var DefaultKeywords = []string{
	"event", "concert", "show", "performance", "party", "celebration",
	"festival", "workshop", "seminar", "conference", "meetup", "launch",
	"opening", "closing", "anniversary", "birthday", "wedding", "gala",
	"competition", "tournament", "match", "game", "screening", "premiere",
	"sale", "promotion", "special", "limited time", "today only", "live",
	"happening", "join us", "come celebrate", "don't miss",
}

// Classification is the event/venue decision for a single profile.
type Classification struct {
	IsEvent bool

	// SupportingPost is the post used as evidence for an event. Nil for
	// venues.
	SupportingPost *Post

	// LatestPostID is the id of the most recent post, nil when the profile
	// has no posts or the post carries no id.
	LatestPostID *string
}

// Kind returns the record kind the classification maps to.
func (c Classification) Kind() RecordKind {
	if c.IsEvent {
		return RecordKindEvent
	}
	return RecordKindVenue
}

// Classifier labels profiles as events or venues.
type Classifier struct {
	keywords []string
}

// NewClassifier returns a Classifier matching the given keywords as
// case-insensitive substrings. An empty list falls back to DefaultKeywords.
func NewClassifier(keywords []string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Classifier{keywords: lowered}
}

// Classify inspects the most recent posts and bio of p. An explicit
// upcoming-event flag wins over keyword matching; the first flagged post in
// window order is the supporting post.
func (c *Classifier) Classify(p *Profile) Classification {
	window := p.Posts
	if len(window) > recentPostWindow {
		window = window[:recentPostWindow]
	}

	var result Classification
	if len(window) > 0 && window[0].ID != "" {
		id := window[0].ID
		result.LatestPostID = &id
	}

	for i := range window {
		if window[i].HasUpcomingEvent {
			post := window[i]
			result.IsEvent = true
			result.SupportingPost = &post
			return result
		}
	}

	if len(window) > 0 && c.matchesKeywords(p.Biography, window) {
		post := window[0]
		result.IsEvent = true
		result.SupportingPost = &post
	}
	return result
}

func (c *Classifier) matchesKeywords(bio string, window []Post) bool {
	captions := make([]string, 0, len(window))
	for _, post := range window {
		if post.Caption != nil {
			captions = append(captions, *post.Caption)
		}
	}
	text := strings.ToLower(bio + " " + strings.Join(captions, " "))

	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
