package core

import (
	"errors"
)

// Fatal configuration errors. Nothing below the application shell recovers from these.
var (
	ErrIncompatibleFormats = errors.New("rebuilt surface attachment formats differ from the previous surface")
	ErrUnsupportedFormat   = errors.New("required surface format or feature is not supported")
	ErrSurfaceUnavailable  = errors.New("platform refused to create the presentation surface")
	ErrDeviceLost          = errors.New("device lost")
)

// Frame state machine misuse.
var (
	ErrFrameInProgress         = errors.New("frame already in progress")
	ErrFrameNotInProgress      = errors.New("no frame in progress")
	ErrRenderPassInProgress    = errors.New("render pass already in progress")
	ErrRenderPassNotInProgress = errors.New("no render pass in progress")
	ErrForeignCommandBuffer    = errors.New("command buffer does not belong to the current frame slot")
)

// Transient allocation.
var (
	ErrPoolExhausted    = errors.New("transient descriptor pool exhausted")
	ErrStaleBindingSet  = errors.New("binding set belongs to an earlier frame cycle")
	ErrZeroExtent       = errors.New("output extent is zero")
	ErrUnknown          = errors.New("unknown")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAlreadyDestroyed = errors.New("object already destroyed")
)
