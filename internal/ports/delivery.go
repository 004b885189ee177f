package ports

import "context"

// Channel delivers rendered text to one user.
type Channel interface {
	Name() string
	PostPrivateMessage(ctx context.Context, userID string, text string) error
}
