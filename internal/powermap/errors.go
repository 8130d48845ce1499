package powermap

import "errors"

var (
	// ErrDuplicateArea aborts a build: two area features share an id.
	ErrDuplicateArea = errors.New("duplicate area")

	// ErrInvalidSize is returned for unparseable amperage labels.
	ErrInvalidSize = errors.New("invalid power grid item size")

	// ErrNoProjection is returned when an output needs to map metres back to lon/lat.
	ErrNoProjection = errors.New("projection is not invertible")
)
