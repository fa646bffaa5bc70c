package gateway

import (
	"fmt"
	"net/url"
)

// Action is one of the operations the gateway HTTP API exposes.
type Action int

// Gateway and locker actions.
const (
	ActionStatus Action = iota
	ActionUpdate
	ActionSynchronize
	ActionLockerOpen
	ActionLockerClose
	ActionLockerCalibrate
	ActionLockerStatus
	ActionLockerSynchronize
	ActionLockerUpdate
)

// RateClass selects the minimum spacing enforced before a request.
type RateClass int

const (
	// RateLight is for cheap status and administrative calls.
	RateLight RateClass = iota

	// RateHeavy is for calls that physically move a lock or load it heavily.
	RateHeavy
)

func (c RateClass) String() string {
	if c == RateHeavy {
		return "heavy"
	}
	return "light"
}

type actionSpec struct {
	name   string
	path   string
	class  RateClass
	locker bool
}

var actionSpecs = map[Action]actionSpec{
	ActionStatus:            {name: "status", path: "status", class: RateLight},
	ActionUpdate:            {name: "update", path: "update", class: RateLight},
	ActionSynchronize:       {name: "synchronize", path: "synchronize", class: RateLight},
	ActionLockerOpen:        {name: "locker_open", path: "open", class: RateHeavy, locker: true},
	ActionLockerClose:       {name: "locker_close", path: "close", class: RateHeavy, locker: true},
	ActionLockerCalibrate:   {name: "locker_calibrate", path: "calibrate", class: RateHeavy, locker: true},
	ActionLockerStatus:      {name: "locker_status", path: "locker_status", class: RateHeavy, locker: true},
	ActionLockerSynchronize: {name: "locker_synchronize", path: "locker/synchronize", class: RateLight, locker: true},
	ActionLockerUpdate:      {name: "locker_update", path: "locker/update", class: RateLight, locker: true},
}

// Actions returns every known action in declaration order.
func Actions() []Action {
	return []Action{
		ActionStatus, ActionUpdate, ActionSynchronize,
		ActionLockerOpen, ActionLockerClose, ActionLockerCalibrate,
		ActionLockerStatus, ActionLockerSynchronize, ActionLockerUpdate,
	}
}

// ParseAction converts an action name such as "locker_open" to an Action.
func ParseAction(name string) (Action, error) {
	for a, spec := range actionSpecs {
		if spec.name == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

func (a Action) String() string {
	if spec, ok := actionSpecs[a]; ok {
		return spec.name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Path returns the URL path (without leading slash) for the action.
func (a Action) Path() string {
	return actionSpecs[a].path
}

// RateClass returns the rate-limit class for the action.
func (a Action) RateClass() RateClass {
	return actionSpecs[a].class
}

// IsLocker reports whether the action targets a single lock and must carry
// an identifier.
func (a Action) IsLocker() bool {
	return actionSpecs[a].locker
}

// valid reports whether a is a known action.
func (a Action) valid() bool {
	_, ok := actionSpecs[a]
	return ok
}

// payload returns the base form fields for the action.
// The gateway's update endpoint expects a POST with a placeholder field.
func (a Action) payload() url.Values {
	form := url.Values{}
	if a == ActionUpdate {
		form.Set("fake", "True")
	}
	return form
}
