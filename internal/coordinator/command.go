package coordinator

import (
	"context"
	"fmt"
)

// Verb is a user command on a lock.
type Verb string

// Lock verbs.
const (
	VerbOpen      Verb = "open"
	VerbClose     Verb = "close"
	VerbCalibrate Verb = "calibrate"
	VerbSync      Verb = "sync"
)

// ParseVerb validates a verb name.
func ParseVerb(s string) (Verb, error) {
	switch v := Verb(s); v {
	case VerbOpen, VerbClose, VerbCalibrate, VerbSync:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVerb, s)
}

// Execute runs verb on the lock with the given id. A terminal gateway
// failure is returned so the caller can report it. On success listeners
// see the new state and a refresh is requested so the next cycle confirms
// the result.
func (c *Coordinator) Execute(ctx context.Context, id string, verb Verb) error {
	d, err := c.Device(id)
	if err != nil {
		return err
	}

	before := d.Snapshot()
	switch verb {
	case VerbOpen:
		err = d.Open(ctx)
	case VerbClose:
		err = d.Close(ctx)
	case VerbCalibrate:
		err = d.Calibrate(ctx)
	case VerbSync:
		err = d.Sync(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
	if err != nil {
		c.logger.Error("lock command failed", "lock", d.Name(), "verb", string(verb), "error", err)
		return err
	}

	c.logger.Info("lock command sent", "lock", d.Name(), "verb", string(verb))
	if after := d.Snapshot(); !after.SameState(before) {
		c.notifyLock(after)
	}
	c.RequestRefresh()
	return nil
}
