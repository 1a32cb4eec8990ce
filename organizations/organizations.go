package organizations

import "time"

// Organization is the owning entity for client applications. Every
// application must reference one; account management beyond these records
// lives outside the token engine.
type Organization struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created,omitempty"`
}
