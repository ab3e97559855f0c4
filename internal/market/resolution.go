package market

import "fmt"

// ResolutionKind enumerates the family of supported bar resolutions. Ticks
// is a count-based resolution (N primitives per bar); all others are
// calendar/duration based.
type ResolutionKind int

const (
	ResolutionInstant ResolutionKind = iota
	ResolutionTicks
	ResolutionSeconds
	ResolutionMinutes
	ResolutionHours
	ResolutionDay
	ResolutionWeek
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionInstant:
		return "instant"
	case ResolutionTicks:
		return "ticks"
	case ResolutionSeconds:
		return "seconds"
	case ResolutionMinutes:
		return "minutes"
	case ResolutionHours:
		return "hours"
	case ResolutionDay:
		return "day"
	case ResolutionWeek:
		return "week"
	default:
		return "unknown"
	}
}

// rank gives each kind's position in the total order independent of N, so
// e.g. any Minutes resolution outranks any Seconds resolution regardless of
// magnitude.
func (k ResolutionKind) rank() int {
	switch k {
	case ResolutionInstant:
		return 0
	case ResolutionTicks:
		return 1
	case ResolutionSeconds:
		return 2
	case ResolutionMinutes:
		return 3
	case ResolutionHours:
		return 4
	case ResolutionDay:
		return 5
	case ResolutionWeek:
		return 6
	default:
		return -1
	}
}

// Resolution is a typed, totally-ordered bar granularity: Instant, Ticks(n),
// Seconds(n), Minutes(n), Hours(n), Day, or Week.
type Resolution struct {
	Kind ResolutionKind
	N    int
}

func Instant() Resolution               { return Resolution{Kind: ResolutionInstant} }
func Ticks(n int) Resolution            { return Resolution{Kind: ResolutionTicks, N: n} }
func Seconds(n int) Resolution          { return Resolution{Kind: ResolutionSeconds, N: n} }
func Minutes(n int) Resolution          { return Resolution{Kind: ResolutionMinutes, N: n} }
func Hours(n int) Resolution            { return Resolution{Kind: ResolutionHours, N: n} }
func Day() Resolution                   { return Resolution{Kind: ResolutionDay, N: 1} }
func Week() Resolution                  { return Resolution{Kind: ResolutionWeek, N: 1} }

// Less reports whether r is a strictly finer granularity than other: a
// lower rank always sorts before a higher rank; within the same kind, a
// smaller N is finer.
func (r Resolution) Less(other Resolution) bool {
	if r.Kind.rank() != other.Kind.rank() {
		return r.Kind.rank() < other.Kind.rank()
	}
	return r.N < other.N
}

// Equal reports whether r and other denote the same resolution.
func (r Resolution) Equal(other Resolution) bool {
	return r.Kind == other.Kind && r.N == other.N
}

func (r Resolution) String() string {
	switch r.Kind {
	case ResolutionInstant, ResolutionDay, ResolutionWeek:
		return r.Kind.String()
	default:
		return fmt.Sprintf("%d%s", r.N, r.Kind)
	}
}
