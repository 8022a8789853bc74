package entities

// Operator is a management API account (dashboard/supervision), not an
// end user of any channel.
type Operator struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}
