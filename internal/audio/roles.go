package audio

import "fmt"

// Role is the audio part a client currently plays.
type Role int

const (
	RoleNone Role = iota
	RoleBroadcaster
	RoleListener
)

func (r Role) String() string {
	switch r {
	case RoleBroadcaster:
		return "broadcaster"
	case RoleListener:
		return "listener"
	default:
		return "none"
	}
}

// Roles makes broadcasting and listening mutually exclusive for a client.
// It is owned by the same goroutine as the broadcaster and listener.
type Roles struct {
	active Role
}

func (r *Roles) Active() Role {
	return r.active
}

func (r *Roles) acquire(role Role) error {
	if r.active != RoleNone && r.active != role {
		return fmt.Errorf("%w: %s", ErrRoleActive, r.active)
	}
	r.active = role
	return nil
}

func (r *Roles) release(role Role) {
	if r.active == role {
		r.active = RoleNone
	}
}
