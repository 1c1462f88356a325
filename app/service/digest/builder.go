package digest

import (
	"familycoach/app/config"
	"familycoach/app/service/family"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const (
	DefaultWindow = 5

	emptyDigest   = "No recent family data."
	unknownMember = "A family member"
)

// Digest is the background summary of family activity handed to the model.
type Digest string

func (d Digest) String() string {
	return string(d)
}

type Builder struct {
	window int
}

func New(di *do.Injector) (*Builder, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewBuilder(cfg.Digest.Window), nil
}

func NewBuilder(window int) *Builder {
	if window <= 0 {
		window = DefaultWindow
	}

	return &Builder{window: window}
}

// Build renders the snapshot. It has no side effects and the same snapshot
// always yields the same text.
func (b *Builder) Build(s family.Snapshot) Digest {
	if s.Empty() {
		return emptyDigest
	}

	members := pie.Filter(s.Members, func(m family.Member) bool {
		return strings.TrimSpace(m.Name) != ""
	})
	byID := lo.KeyBy(members, func(m family.Member) string {
		return m.ID
	})

	var lines []string

	if len(members) > 0 {
		names := pie.Map(members, func(m family.Member) string {
			return strings.TrimSpace(m.Name)
		})
		lines = append(lines, "The family consists of "+strings.Join(names, ", ")+".")
	}

	moods := pie.Map(lastN(s.Moods, b.window), func(e family.MoodEntry) string {
		name := unknownMember
		if m, ok := byID[e.MemberID]; ok {
			name = strings.TrimSpace(m.Name)
		}

		return name + " felt " + string(e.Mood)
	})
	if len(moods) > 0 {
		lines = append(lines, "Recent moods include: "+strings.Join(moods, ", ")+".")
	}

	events := pie.Filter(lastN(s.Events, b.window), func(e family.CalendarEvent) bool {
		return strings.TrimSpace(e.Title) != ""
	})
	if len(events) > 0 {
		titles := pie.Map(events, func(e family.CalendarEvent) string {
			return strings.TrimSpace(e.Title)
		})
		lines = append(lines, "Upcoming events: "+strings.Join(titles, ", ")+".")
	}

	if len(lines) == 0 {
		return emptyDigest
	}

	return Digest(strings.Join(lines, "\n"))
}

func lastN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}

	return items[len(items)-n:]
}
