// Package scheduler detects double-booked participants across pregames.
package scheduler

import (
	"sort"

	"github.com/example/saturday/internal/calendar"
)

// Booking is an active pregame reduced to what conflict detection needs.
type Booking struct {
	ID           string
	Date         calendar.Date
	Participants []string
}

// Conflict names a participant of the candidate who is already booked on the same day.
type Conflict struct {
	WithBookingID string
	Participant   string
}

// DetectConflicts returns the conflicts between candidate and existing bookings, ordered by
// participant then booking id. A booking never conflicts with itself.
func DetectConflicts(existing []Booking, candidate Booking) []Conflict {
	wanted := make(map[string]bool, len(candidate.Participants))
	for _, p := range candidate.Participants {
		wanted[p] = true
	}

	var conflicts []Conflict
	for _, booking := range existing {
		if booking.ID == candidate.ID || booking.Date != candidate.Date {
			continue
		}
		seen := make(map[string]bool, len(booking.Participants))
		for _, p := range booking.Participants {
			if wanted[p] && !seen[p] {
				seen[p] = true
				conflicts = append(conflicts, Conflict{WithBookingID: booking.ID, Participant: p})
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Participant != conflicts[j].Participant {
			return conflicts[i].Participant < conflicts[j].Participant
		}
		return conflicts[i].WithBookingID < conflicts[j].WithBookingID
	})
	return conflicts
}
