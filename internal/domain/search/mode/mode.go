package mode

// Mode selects which retrieval passes run for a query.
type Mode string

// Search mode constants.
const (
	// Hybrid runs the vector and text passes concurrently and fuses them.
	Hybrid Mode = "hybrid"
	Vector Mode = "vector"
	Text   Mode = "text"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Vector || m == Text
}

// UsesVector reports whether the vector pass runs in this mode.
func (m Mode) UsesVector() bool { return m == Hybrid || m == Vector }

// UsesText reports whether the text pass runs in this mode.
func (m Mode) UsesText() bool { return m == Hybrid || m == Text }
