package metagan

import (
	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedDataSize is returned when a network is configured for a resolution without a kernel/stride table entry
	ErrUnsupportedDataSize = errors.New("unsupported data size")
	// ErrInvalidLength is returned for non-positive meta, latent or auxiliary lengths
	ErrInvalidLength = errors.New("invalid length")
	// ErrShapeMismatch is returned when forward inputs do not match the constructed dimensions
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrDtypeMismatch is returned when forward inputs carry a dtype other than the network's one
	ErrDtypeMismatch = errors.New("dtype mismatch")
	// ErrNotInitialized is returned when parameters are needed but have not been initialized yet
	ErrNotInitialized = errors.New("parameters are not initialized")
)
