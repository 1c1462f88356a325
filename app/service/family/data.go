package family

import "slices"

type Mood string

const (
	MoodHappy    Mood = "happy"
	MoodCalm     Mood = "calm"
	MoodMeh      Mood = "meh"
	MoodSad      Mood = "sad"
	MoodAnxious  Mood = "anxious"
	MoodAngry    Mood = "angry"
	MoodStressed Mood = "stressed"
)

type Member struct {
	ID           string `json:"id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Relationship string `json:"relationship"`
}

type MoodEntry struct {
	ID       string `json:"id"`
	MemberID string `json:"memberId" validate:"required"`
	Mood     Mood   `json:"mood" validate:"oneof=happy calm meh sad anxious angry stressed"`
	Notes    string `json:"notes,omitempty"`
	// YYYY-MM-DD
	Date string `json:"date"`
}

type CalendarEvent struct {
	ID        string   `json:"id"`
	MemberIDs []string `json:"memberIds"`
	Title     string   `json:"title" validate:"required"`
	// YYYY-MM-DD
	Date   string `json:"date"`
	AllDay bool   `json:"allDay"`
}

// Snapshot is the family state a single turn is built from. It owns its
// slices, so later changes to the caller's data do not leak into a turn
// that is already running.
type Snapshot struct {
	Members []Member
	Moods   []MoodEntry
	Events  []CalendarEvent
}

func NewSnapshot(members []Member, moods []MoodEntry, events []CalendarEvent) Snapshot {
	clonedEvents := make([]CalendarEvent, len(events))
	for i, e := range events {
		e.MemberIDs = slices.Clone(e.MemberIDs)
		clonedEvents[i] = e
	}

	return Snapshot{
		Members: slices.Clone(members),
		Moods:   slices.Clone(moods),
		Events:  clonedEvents,
	}
}

func (s Snapshot) Empty() bool {
	return len(s.Members) == 0 && len(s.Moods) == 0 && len(s.Events) == 0
}
