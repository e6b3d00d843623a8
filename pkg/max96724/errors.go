package max96724

import "errors"

var (
	ErrCapacityExceeded    = errors.New("max96724: source capacity exhausted")
	ErrLinkInUse           = errors.New("max96724: serdes link is in use")
	ErrLaneCountMismatch   = errors.New("max96724: csi lane count mismatch")
	ErrCSIModeUnsupported  = errors.New("max96724: csi mode not supported")
	ErrNotFound            = errors.New("max96724: source not found")
	ErrEmpty               = errors.New("max96724: no source registered")
	ErrInvalidState        = errors.New("max96724: invalid state")
	ErrNoFreePipe          = errors.New("max96724: all pipes are busy")
	ErrOutOfRange          = errors.New("max96724: argument out of range")
	ErrInvalidArgument     = errors.New("max96724: invalid argument")
	ErrUnknownChipRevision = errors.New("max96724: unknown chip revision")
)
