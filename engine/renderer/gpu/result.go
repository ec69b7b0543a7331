package gpu

import "fmt"

// Result is the outcome of a queue or presentation operation.
type Result int

const (
	ResultSuccess Result = iota
	ResultSuboptimal
	ResultTimeout
	ResultNotReady
	ResultErrorOutOfDate
	ResultErrorOutOfPoolMemory
	ResultErrorFragmentedPool
	ResultErrorSurfaceLost
	ResultErrorDeviceLost
	ResultErrorOutOfMemory
	ResultErrorUnknown
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultSuboptimal:
		return "SUBOPTIMAL"
	case ResultTimeout:
		return "TIMEOUT"
	case ResultNotReady:
		return "NOT_READY"
	case ResultErrorOutOfDate:
		return "ERROR_OUT_OF_DATE"
	case ResultErrorOutOfPoolMemory:
		return "ERROR_OUT_OF_POOL_MEMORY"
	case ResultErrorFragmentedPool:
		return "ERROR_FRAGMENTED_POOL"
	case ResultErrorSurfaceLost:
		return "ERROR_SURFACE_LOST"
	case ResultErrorDeviceLost:
		return "ERROR_DEVICE_LOST"
	case ResultErrorOutOfMemory:
		return "ERROR_OUT_OF_MEMORY"
	case ResultErrorUnknown:
		return "ERROR_UNKNOWN"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// IsSuccess is true for Success and Suboptimal: the operation took effect.
func (r Result) IsSuccess() bool {
	return r == ResultSuccess || r == ResultSuboptimal
}

// IsStale reports whether the surface no longer matches the swapchain.
func (r Result) IsStale() bool {
	return r == ResultErrorOutOfDate || r == ResultSuboptimal
}

// ResultError wraps a failed Result for call sites that return errors.
type ResultError struct {
	Op     string
	Result Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Result)
}

// Err returns nil for successful results and a *ResultError otherwise.
func (r Result) Err(op string) error {
	if r.IsSuccess() {
		return nil
	}
	return &ResultError{Op: op, Result: r}
}
