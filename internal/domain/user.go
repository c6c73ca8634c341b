package domain

import "time"

// UserProfile holds the per-wallet profile data the core needs: the set of
// markets the wallet has created. CreatedMarkets behaves as a set; adding a
// market the wallet already created must not produce a duplicate.
type UserProfile struct {
	Wallet         string
	CreatedMarkets []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
