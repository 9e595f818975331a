package domain

// AlertType distinguishes alert payloads on the notification surface.
type AlertType string

const (
	// AlertHighPotential fires once when a token's score crosses the alert threshold.
	AlertHighPotential AlertType = "high_potential"
	// AlertGraduated fires once when a token graduates.
	AlertGraduated AlertType = "graduated"
)

// Alert is the structured payload sent to notification collaborators.
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	TokenAddress string    `json:"tokenAddress"`
	TokenSymbol  string    `json:"tokenSymbol"`
	Score        int       `json:"score"`
	Timestamp    int64     `json:"timestamp"` // Unix ms
}
