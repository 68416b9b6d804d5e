package mission

import "errors"

var (
	// ErrCommandsNotSupported is returned by AddCommands on the network
	// driven mission, whose commands arrive as packets.
	ErrCommandsNotSupported = errors.New("mission: rf_sensor mission does not add commands")
	ErrUnknownKind          = errors.New("mission: unknown mission kind")
	ErrMissingDependency    = errors.New("mission: missing dependency")
	ErrInvalidWaypointType  = errors.New("mission: invalid waypoint type")
	ErrNoDump               = errors.New("mission: no dump")
	ErrDumpSequence         = errors.New("mission: dump indices are not sequential")
	ErrNoPlan               = errors.New("mission: no plan for vehicle")
)
