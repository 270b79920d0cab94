package planner

import "errors"

// Sentinel errors returned by the service. Callers match them with errors.Is.
var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrTaskExists          = errors.New("task already exists")
	ErrUnknownDependency   = errors.New("unknown dependency")
	ErrCircularDependency  = errors.New("circular dependency")
	ErrInvalidWindow       = errors.New("invalid scheduling window")
	ErrInvalidDate         = errors.New("invalid date")
	ErrDependenciesPending = errors.New("dependencies not completed")
	ErrUnknownProfile      = errors.New("unknown scheduling profile")
)
