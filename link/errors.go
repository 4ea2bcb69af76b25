package link

import "fmt"

// DataError reports malformed or insufficient channel or configuration data.
// It is not recoverable and is surfaced immediately.
type DataError struct {
	Param  string
	Detail string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error: %s: %s", e.Param, e.Detail)
}

// ConfigError reports an out-of-range or physically unstable parameter, such
// as a loop bandwidth beyond the stable region. A run that hits a ConfigError
// aborts before any partial result is produced.
type ConfigError struct {
	Param string
	Value float64
	Bound float64
	Why   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s = %g exceeds bound %g: %s",
		e.Param, e.Value, e.Bound, e.Why)
}

// ConstraintViolation records an electrical constraint that was exceeded,
// such as the DFE tap-one voltage limit. It is not fatal: the violation is
// attached to the result as a penalty so that optimization and reasoning
// layers can penalize the configuration instead of clipping it silently.
type ConstraintViolation struct {
	Param string
	Value float64
	Limit float64
}

func (v ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation: %s = %g exceeds limit %g",
		v.Param, v.Value, v.Limit)
}

// PenaltyMV converts the overage into an equivalent vertical-margin penalty.
// The factor models summer saturation: every mV beyond the limit costs two
// mV of usable eye height.
func (v ConstraintViolation) PenaltyMV() float64 {
	if v.Value <= v.Limit {
		return 0
	}
	return 2 * (v.Value - v.Limit)
}
