package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleClient talks to a Google Calendar with a service account that has
// write access to it.
type GoogleClient struct {
	svc        *gcal.Service
	calendarID string
}

// NewGoogleClient builds a client from a service-account credentials file.
func NewGoogleClient(ctx context.Context, calendarID, credentialsFile string) (*GoogleClient, error) {
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("google calendar service: %w", err)
	}
	return &GoogleClient{svc: svc, calendarID: calendarID}, nil
}

func (c *GoogleClient) Get(ctx context.Context, slotID string) (*Slot, error) {
	ev, err := c.svc.Events.Get(c.calendarID, slotID).Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}
	if ev.Status == "cancelled" {
		return nil, ErrSlotNotFound
	}
	return slotFromEvent(ev), nil
}

func (c *GoogleClient) List(ctx context.Context, timeMin time.Time) ([]Slot, error) {
	var out []Slot
	err := c.svc.Events.List(c.calendarID).
		TimeMin(timeMin.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		SingleEvents(true).
		Pages(ctx, func(page *gcal.Events) error {
			for _, ev := range page.Items {
				out = append(out, *slotFromEvent(ev))
			}
			return nil
		})
	if err != nil {
		return nil, mapGoogleError(err)
	}
	return out, nil
}

func (c *GoogleClient) Patch(ctx context.Context, slotID string, p Patch, notify bool) (*Slot, error) {
	ev := &gcal.Event{}
	if p.Summary != nil {
		ev.Summary = *p.Summary
	}
	if p.Visibility != nil {
		ev.Visibility = *p.Visibility
	}
	if p.Attendees != nil {
		for _, a := range *p.Attendees {
			ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{DisplayName: a.Name, Email: a.Email})
		}
		// An empty list is dropped by omitempty unless forced.
		ev.ForceSendFields = append(ev.ForceSendFields, "Attendees")
	}

	sendUpdates := "none"
	if notify {
		sendUpdates = "all"
	}
	updated, err := c.svc.Events.Patch(c.calendarID, slotID, ev).SendUpdates(sendUpdates).Context(ctx).Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}
	return slotFromEvent(updated), nil
}

func slotFromEvent(ev *gcal.Event) *Slot {
	s := &Slot{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Visibility:  ev.Visibility,
		Start:       parseEventTime(ev.Start),
		End:         parseEventTime(ev.End),
	}
	for _, a := range ev.Attendees {
		if a == nil {
			continue
		}
		s.Attendees = append(s.Attendees, Attendee{Name: a.DisplayName, Email: a.Email})
	}
	return s
}

func parseEventTime(t *gcal.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse("2006-01-02", t.Date); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func mapGoogleError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && (gErr.Code == http.StatusNotFound || gErr.Code == http.StatusGone) {
		return ErrSlotNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
