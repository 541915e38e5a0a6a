package health

// Color is the per-unit severity shown on the status page.
type Color string

const (
	Green  Color = "green"  // healthy
	Blue   Color = "blue"   // unknown, used by the maintenance pseudo unit
	Yellow Color = "yellow" // degraded
	Red    Color = "red"    // failed
)

// Rank orders colors from best to worst. Unknown colors rank as failed.
func (c Color) Rank() int {
	switch c {
	case Green:
		return 0
	case Blue:
		return 1
	case Yellow:
		return 2
	default:
		return 3
	}
}

// Worse returns the more severe of a and b.
func Worse(a, b Color) Color {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Entity returns the HTML entity of the colored circle used for c.
func (c Color) Entity() string {
	switch c {
	case Green:
		return "&#128994;"
	case Blue:
		return "&#128309;"
	case Yellow:
		return "&#128993;"
	default:
		return "&#128308;"
	}
}
