package domain

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordKind identifies which canonical record a profile was shaped into.
type RecordKind string

const (
	RecordKindEvent RecordKind = "event"
	RecordKindVenue RecordKind = "venue"
	RecordKindError RecordKind = "error"
)

// Table names for each record kind.
const (
	EventsTable = "events"
	VenuesTable = "venues"
)

// EventStatus is the lifecycle state of an event listing.
type EventStatus string

const (
	EventStatusUnpublished EventStatus = "UNPUBLISHED"
	EventStatusActive      EventStatus = "ACTIVE"
	EventStatusCancelled   EventStatus = "CANCELLED"
)

// Column is a single named value of a record, in table column order.
type Column struct {
	Name  string
	Value any
}

// Record is a canonical row ready for persistence.
type Record interface {
	Kind() RecordKind
	Table() string

	// DisplayName is the human-readable name used in outcome messages.
	DisplayName() string

	// Columns returns every column of the record. The first column is
	// always "id".
	Columns() []Column
}

// EventRecord is the canonical row of the events table.
type EventRecord struct {
	ID                int64       `json:"id"`
	PerformerID       *int64      `json:"performerId"`
	EventName         string      `json:"eventName"`
	Description       string      `json:"description"`
	MinAmount         *float64    `json:"minAmount"`
	EventDate         time.Time   `json:"eventDate"`
	PosterURL         string      `json:"posterUrl"`
	CreatedBy         *int64      `json:"createdBy"`
	DeletedAt         *time.Time  `json:"deletedAt"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
	IsPaid            bool        `json:"isPaid"`
	TicketingURL      string      `json:"ticketingURL"`
	EventQRCode       *string     `json:"eventQRCode"`
	EventStatus       EventStatus `json:"eventStatus"`
	PreviousEventDate *time.Time  `json:"previousEventDate"`
	PreviousStartTime *time.Time  `json:"previousStartTime"`
	PreviousEndTime   *time.Time  `json:"previousEndTime"`
	StartTime         time.Time   `json:"startTime"`
	EndTime           time.Time   `json:"endTime"`
	VenueID           *int64      `json:"venueId"`
}

func (r *EventRecord) Kind() RecordKind    { return RecordKindEvent }
func (r *EventRecord) Table() string       { return EventsTable }
func (r *EventRecord) DisplayName() string { return r.EventName }

func (r *EventRecord) Columns() []Column {
	return []Column{
		{"id", r.ID},
		{"performerId", nullable(r.PerformerID)},
		{"eventName", r.EventName},
		{"description", r.Description},
		{"minAmount", nullable(r.MinAmount)},
		{"eventDate", r.EventDate},
		{"posterUrl", r.PosterURL},
		{"createdBy", nullable(r.CreatedBy)},
		{"deletedAt", nullable(r.DeletedAt)},
		{"createdAt", r.CreatedAt},
		{"updatedAt", r.UpdatedAt},
		{"isPaid", r.IsPaid},
		{"ticketingURL", r.TicketingURL},
		{"eventQRCode", nullable(r.EventQRCode)},
		{"eventStatus", string(r.EventStatus)},
		{"previousEventDate", nullable(r.PreviousEventDate)},
		{"previousStartTime", nullable(r.PreviousStartTime)},
		{"previousEndTime", nullable(r.PreviousEndTime)},
		{"startTime", r.StartTime},
		{"endTime", r.EndTime},
		{"venueId", nullable(r.VenueID)},
	}
}

// VenueRecord is the canonical row of the venues table.
type VenueRecord struct {
	ID                   int64      `json:"id"`
	UserID               *int64     `json:"userId"`
	VenueName            string     `json:"venueName"`
	Email                *string    `json:"email"`
	PhoneNumber          *string    `json:"phoneNumber"`
	Address              string     `json:"address"`
	OpenHours            *string    `json:"openHours"`
	ClosingHours         *string    `json:"closingHours"`
	Latitude             *float64   `json:"latitude"`
	Longitude            *float64   `json:"longitude"`
	Capacity             *int64     `json:"capacity"`
	Description          string     `json:"description"`
	Website              string     `json:"website"`
	ProfileImageURL      string     `json:"profileImageUrl"`
	CoverImageURL        *string    `json:"coverImageUrl"`
	AllowsDirectBookings bool       `json:"allowsDirectBookings"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	DeletedAt            *time.Time `json:"deletedAt"`
}

func (r *VenueRecord) Kind() RecordKind    { return RecordKindVenue }
func (r *VenueRecord) Table() string       { return VenuesTable }
func (r *VenueRecord) DisplayName() string { return r.VenueName }

func (r *VenueRecord) Columns() []Column {
	return []Column{
		{"id", r.ID},
		{"userId", nullable(r.UserID)},
		{"venueName", r.VenueName},
		{"email", nullable(r.Email)},
		{"phoneNumber", nullable(r.PhoneNumber)},
		{"address", r.Address},
		{"openHours", nullable(r.OpenHours)},
		{"closingHours", nullable(r.ClosingHours)},
		{"latitude", nullable(r.Latitude)},
		{"longitude", nullable(r.Longitude)},
		{"capacity", nullable(r.Capacity)},
		{"description", r.Description},
		{"website", r.Website},
		{"profileImageUrl", r.ProfileImageURL},
		{"coverImageUrl", nullable(r.CoverImageURL)},
		{"allowsDirectBookings", r.AllowsDirectBookings},
		{"createdAt", r.CreatedAt},
		{"updatedAt", r.UpdatedAt},
		{"deletedAt", nullable(r.DeletedAt)},
	}
}

// nullable unwraps p so drivers receive an untyped nil for absent values.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// recordNamespace seeds the name-based UUIDs behind record identifiers.
var recordNamespace = uuid.MustParse("6f1c2b0e-8a4d-5e7f-9b3c-2d1e0f4a6b8c")

// NormalizeHandle returns the canonical form of a profile handle. Handles
// are case-insensitive upstream.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// RecordID derives the identifier of the record shaped from handle. The id
// depends only on the kind and the lower-cased handle, so repeated runs for
// the same profile update one row instead of inserting duplicates. The
// value fits a positive 32-bit integer column.
func RecordID(kind RecordKind, handle string) int64 {
	name := string(kind) + ":" + NormalizeHandle(handle)
	u := uuid.NewSHA1(recordNamespace, []byte(name))
	id := int64(binary.BigEndian.Uint32(u[:4]) & 0x7fffffff)
	if id == 0 {
		id = 1
	}
	return id
}
