package gputime

import (
	"errors"
	"fmt"

	"github.com/born-ml/gputime/internal/vk"
)

// Misuse, exhaustion and readback errors. Hooks wrap these with the offending
// handle; match them with errors.Is.
var (
	ErrInvalidDevice       = errors.New("invalid device handle")
	ErrDeviceMismatch      = errors.New("device does not match the tracked device")
	ErrDeviceActive        = errors.New("a device is already being tracked")
	ErrAlreadyTracked      = errors.New("command buffer is already tracked")
	ErrNotTracked          = errors.New("command buffer is not tracked")
	ErrReusableUnsupported = errors.New("simultaneous-use command buffers are not supported")
	ErrNilLabel            = errors.New("debug label is nil")
	ErrNilHook             = errors.New("device entry point is nil")
	ErrSlotsExhausted      = errors.New("no free timestamp query slots")
	ErrRenderPassOrder     = errors.New("render pass begin/end out of order")
	ErrResultsNotReady     = errors.New("query results not ready")
	ErrResultUnavailable   = errors.New("query result not available")
)

// DeviceError reports a device entry point that returned a failure code.
type DeviceError struct {
	Op     string    // Entry point name, e.g. "vkGetQueryPoolResults"
	Result vk.Result // Code returned by the driver
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed with VkResult %d (%s)", e.Op, int32(e.Result), e.Result)
}
