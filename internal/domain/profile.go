package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrStructure is returned when the upstream document is missing the
// containers every profile response must carry.
var ErrStructure = errors.New("invalid data structure from API")

// ErrFetch marks failures to retrieve a profile document from upstream.
var ErrFetch = errors.New("profile fetch failed")

// Profile is the subset of an upstream profile document the pipeline
// consumes. Optional upstream text that may be null is kept as a pointer so
// that an absent value is never confused with an empty one.
type Profile struct {
	// FullName is the profile's display name.
	FullName string

	// Biography is the profile bio text.
	Biography string

	// ExternalURL is the link shown on the profile, usually a ticketing or
	// booking page.
	ExternalURL string

	// ProfilePicURL is the URL of the profile picture.
	ProfilePicURL string

	BusinessEmail       *string
	BusinessPhoneNumber *string

	// BusinessAddressJSON is the raw JSON-encoded address blob. Nil when the
	// field is absent or not a string.
	BusinessAddressJSON *string

	// Posts are the recent timeline posts, most recent first.
	Posts []Post
}

// Post is a single timeline post.
type Post struct {
	// ID is the upstream post identifier. Empty when absent.
	ID string

	// Caption is the text of the first caption edge, nil when the post has
	// no caption.
	Caption *string

	// DisplayURL is the media URL, nil when absent.
	DisplayURL *string

	// HasUpcomingEvent is the platform's explicit upcoming-event flag.
	HasUpcomingEvent bool

	// LocationID is the id of the tagged location, nil when untagged.
	LocationID *string
}

// ParseProfile decodes an upstream profile document. Only the top two
// levels are strict: a document that is not an object, or lacks a data
// object, yields ErrStructure. Everything below degrades to absent values.
func ParseProfile(doc []byte) (*Profile, error) {
	root, ok := object(doc)
	if !ok {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrStructure)
	}

	data, ok := object(root["data"])
	if !ok {
		return nil, fmt.Errorf("%w: missing data object", ErrStructure)
	}

	p := &Profile{
		FullName:            stringOrEmpty(data["full_name"]),
		Biography:           stringOrEmpty(data["biography"]),
		ExternalURL:         stringOrEmpty(data["external_url"]),
		ProfilePicURL:       stringOrEmpty(data["profile_pic_url"]),
		BusinessEmail:       optionalString(data["business_email"]),
		BusinessPhoneNumber: optionalString(data["business_phone_number"]),
		BusinessAddressJSON: optionalString(data["business_address_json"]),
	}

	media, present := data["edge_owner_to_timeline_media"]
	if !present || isNull(media) {
		return p, nil
	}
	timeline, ok := object(media)
	if !ok {
		return nil, fmt.Errorf("%w: edge_owner_to_timeline_media is not an object", ErrStructure)
	}

	rawEdges, present := timeline["edges"]
	if !present || isNull(rawEdges) {
		return p, nil
	}
	var edges []json.RawMessage
	if err := json.Unmarshal(rawEdges, &edges); err != nil {
		return nil, fmt.Errorf("%w: timeline edges are not a list", ErrStructure)
	}

	p.Posts = make([]Post, 0, len(edges))
	for _, edge := range edges {
		p.Posts = append(p.Posts, parsePost(edge))
	}
	return p, nil
}

func parsePost(edge json.RawMessage) Post {
	wrapper, ok := object(edge)
	if !ok {
		return Post{}
	}
	node, ok := object(wrapper["node"])
	if !ok {
		return Post{}
	}

	post := Post{
		ID:         stringOrEmpty(node["id"]),
		DisplayURL: optionalString(node["display_url"]),
		Caption:    firstCaption(node["edge_media_to_caption"]),
	}

	var flag bool
	if err := json.Unmarshal(node["has_upcoming_event"], &flag); err == nil {
		post.HasUpcomingEvent = flag
	}

	if location, ok := object(node["location"]); ok {
		post.LocationID = optionalScalar(location["id"])
	}
	return post
}

// firstCaption reads edge_media_to_caption.edges[0].node.text.
func firstCaption(raw json.RawMessage) *string {
	container, ok := object(raw)
	if !ok {
		return nil
	}
	var edges []json.RawMessage
	if err := json.Unmarshal(container["edges"], &edges); err != nil || len(edges) == 0 {
		return nil
	}
	first, ok := object(edges[0])
	if !ok {
		return nil
	}
	node, ok := object(first["node"])
	if !ok {
		return nil
	}
	return optionalString(node["text"])
}

func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

func optionalString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func stringOrEmpty(raw json.RawMessage) string {
	if s := optionalString(raw); s != nil {
		return *s
	}
	return ""
}

// optionalScalar accepts either a JSON string or number. Location ids show
// up as both depending on the upstream endpoint version.
func optionalScalar(raw json.RawMessage) *string {
	if s := optionalString(raw); s != nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	s := n.String()
	return &s
}
