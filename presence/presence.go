// Package presence publishes the roster of connected players to an external
// store so server browsers and tooling can see who is online.
package presence

import "context"

// Publisher records players entering and leaving the game.
type Publisher interface {
	// Join records that slot id is now played by username.
	Join(ctx context.Context, id int, username string) error
	// Leave removes slot id from the roster.
	Leave(ctx context.Context, id int) error
	// Clear empties the roster, typically at startup.
	Clear(ctx context.Context) error
	// Close releases the publisher's resources.
	Close() error
}

// Noop is a Publisher that discards everything.
type Noop struct{}

func (Noop) Join(context.Context, int, string) error { return nil }
func (Noop) Leave(context.Context, int) error        { return nil }
func (Noop) Clear(context.Context) error             { return nil }
func (Noop) Close() error                            { return nil }
