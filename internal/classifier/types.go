// Package classifier is the boundary to the external media/text
// classification collaborator. The model behind it is opaque; this package
// owns only the transport and the mapping of its loosely-shaped JSON output
// into a fixed Verdict value the intake flow can branch on.
package classifier

// Priority levels reported by the classifier.
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// Verdict is the fixed-shape classification result. Unknown or missing
// fields in the collaborator's output are defaulted at the boundary rather
// than propagated as untyped maps.
type Verdict struct {
	IsReal      bool   `json:"isReal"`
	FakeReason  string `json:"fakeReason,omitempty"`
	Issue       string `json:"issue"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	// Confidence is clamped to 0-100.
	Confidence int    `json:"confidence"`
	Department  string `json:"department"`
	EventType   string `json:"eventType"`
}

// PendingVerdict is substituted when media bytes could not be acquired. The
// report proceeds through the name/location flow and is classified later by
// the review desk.
func PendingVerdict() Verdict {
	return Verdict{
		IsReal:      true,
		Issue:       "Report (Media Pending)",
		Description: "Processing...",
		Category:    "General",
		Priority:    PriorityMedium,
		Confidence:  100,
		Department:  "General",
		EventType:   "General Civic Issue",
	}
}
