package domain

import "time"

type Plan string

const (
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
)

func (p Plan) Valid() bool {
	return p == PlanBasic || p == PlanPremium
}

// Tribute is one tribute page record, paid or unpaid. Slug is the correlation
// key across draft storage, checkout metadata and webhook events.
type Tribute struct {
	Slug       string     `json:"slug" bson:"_id"`
	Plan       Plan       `json:"plan" bson:"plan"`
	Email      string     `json:"email" bson:"email"`
	CoupleName string     `json:"coupleName" bson:"coupleName"`
	Message    string     `json:"message" bson:"message"`
	Story      string     `json:"story,omitempty" bson:"story,omitempty"`
	YoutubeUrl string     `json:"youtubeUrl,omitempty" bson:"youtubeUrl,omitempty"`
	StartDate  time.Time  `json:"startDate" bson:"startDate"`
	Images     []string   `json:"images" bson:"images"`
	AudioUrl   string     `json:"audioUrl,omitempty" bson:"audioUrl,omitempty"`
	Paid       bool       `json:"paid" bson:"paid"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt"`
	// ExpiresAt is the content-visibility horizon for basic plan pages, absent for premium.
	ExpiresAt *time.Time `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	// CleanupAt drives the TTL deletion of unpaid drafts. Activation removes it;
	// a paid record carrying cleanupAt is an invariant violation.
	CleanupAt *time.Time `json:"cleanupAt,omitempty" bson:"cleanupAt,omitempty"`
}
