package points

import "context"

// Repository persists points accounts. Implementations live in the
// infrastructure layer.
type Repository interface {
	// Get returns the account for userID, or shared.ErrUserNotFound.
	Get(ctx context.Context, userID string) (*Account, error)

	// Save writes the account with compare-and-swap on Version: a new
	// account is inserted only if absent, an existing one is updated only if
	// the stored version still equals acc.Version. Pending redemptions are
	// written in the same transaction. On success the account's version is
	// advanced via MarkSaved; on a lost race shared.ErrConcurrentModification
	// is returned and nothing is written.
	Save(ctx context.Context, acc *Account) error

	// Redemptions returns the user's redemptions in the order they were
	// committed.
	Redemptions(ctx context.Context, userID string) ([]Redemption, error)
}
