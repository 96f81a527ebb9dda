package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Formatter shapes parsed profiles into canonical records.
type Formatter struct {
	// CreatorID is written to events.createdBy and venues.userId. Nil leaves
	// the columns null.
	CreatorID *int64

	// DefaultVenueID is used for events whose supporting post carries no
	// resolvable location.
	DefaultVenueID *int64

	// Now returns the formatting timestamp. Defaults to time.Now in UTC.
	Now func() time.Time
}

func (f *Formatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().UTC()
}

// FormatEvent builds the event record for handle. The supporting post, when
// present, supplies the description, poster and venue; the profile fills in
// whatever the post lacks. Events are never published automatically.
func (f *Formatter) FormatEvent(handle string, p *Profile, supporting *Post) *EventRecord {
	if supporting == nil {
		supporting = &Post{}
	}
	now := f.now()

	description := p.Biography
	if supporting.Caption != nil {
		description = *supporting.Caption
	}

	poster := p.ProfilePicURL
	if supporting.DisplayURL != nil {
		poster = *supporting.DisplayURL
	}

	return &EventRecord{
		ID:           RecordID(RecordKindEvent, handle),
		EventName:    p.FullName,
		Description:  description,
		EventDate:    now,
		PosterURL:    poster,
		CreatedBy:    copyInt64(f.CreatorID),
		CreatedAt:    now,
		UpdatedAt:    now,
		TicketingURL: p.ExternalURL,
		EventStatus:  EventStatusUnpublished,
		StartTime:    now,
		EndTime:      now,
		VenueID:      f.resolveVenue(supporting.LocationID),
	}
}

// FormatVenue builds the venue record for handle.
func (f *Formatter) FormatVenue(handle string, p *Profile) *VenueRecord {
	now := f.now()
	return &VenueRecord{
		ID:              RecordID(RecordKindVenue, handle),
		UserID:          copyInt64(f.CreatorID),
		VenueName:       p.FullName,
		Email:           copyString(p.BusinessEmail),
		PhoneNumber:     copyString(p.BusinessPhoneNumber),
		Address:         streetAddress(p.BusinessAddressJSON),
		Description:     p.Biography,
		Website:         p.ExternalURL,
		ProfileImageURL: p.ProfilePicURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Format shapes p according to c.
func (f *Formatter) Format(handle string, p *Profile, c Classification) Record {
	if c.IsEvent {
		return f.FormatEvent(handle, p, c.SupportingPost)
	}
	return f.FormatVenue(handle, p)
}

func (f *Formatter) resolveVenue(locationID *string) *int64 {
	if locationID != nil {
		if id, err := strconv.ParseInt(*locationID, 10, 64); err == nil {
			return &id
		}
	}
	return copyInt64(f.DefaultVenueID)
}

// streetAddress reads street_address from the business address blob.
// Absent or malformed blobs yield an empty address rather than an error.
func streetAddress(blob *string) string {
	if blob == nil || *blob == "" {
		return ""
	}
	var address struct {
		StreetAddress *string `json:"street_address"`
	}
	if err := json.Unmarshal([]byte(*blob), &address); err != nil {
		return ""
	}
	if address.StreetAddress == nil {
		return ""
	}
	return *address.StreetAddress
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
