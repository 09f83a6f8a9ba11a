// Package provision talks to the game fleet: it spins up backend instances
// for winning games and moves players onto them.
package provision

import "context"

// Provisioner is the fleet control surface the lobby needs.
type Provisioner interface {
	// CreateAndStart provisions an instance from the given task template
	// and returns its instance ref once it is accepting players.
	CreateAndStart(ctx context.Context, taskRef string) (string, error)
	// SendToInstance moves a player onto an instance.
	SendToInstance(ctx context.Context, playerName, instanceRef string) error
	// RunRemoteCommand executes a console command on an instance.
	RunRemoteCommand(ctx context.Context, instanceRef, command string) error
}
