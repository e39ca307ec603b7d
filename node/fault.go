package node

import (
	"errors"
	"fmt"
)

// DTC is a diagnostic trouble code attached to a fault. The runtime keeps
// the first activated code; handlers use it to decide whether a condition
// is worth aborting for (an empty receive queue is not).
type DTC uint32

const (
	DTCNone DTC = iota
	DTCUsage
	DTCConfig
	DTCBus
	DTCUnavailable
	DTCInterrupted
)

func (d DTC) String() string {
	switch d {
	case DTCNone:
		return "NONE"
	case DTCUsage:
		return "USAGE"
	case DTCConfig:
		return "CONFIG"
	case DTCBus:
		return "BUS"
	case DTCUnavailable:
		return "UNAVAILABLE"
	case DTCInterrupted:
		return "INTERRUPTED"
	}
	return fmt.Sprintf("DTC(%d)", uint32(d))
}

// Fault pairs a trouble code with its cause.
type Fault struct {
	Code DTC
	Err  error
}

func NewFault(code DTC, err error) *Fault {
	return &Fault{Code: code, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("fault %s", f.Code)
	}
	return fmt.Sprintf("fault %s: %v", f.Code, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// CodeOf extracts the DTC from an error chain, DTCNone when there is no
// Fault in it.
func CodeOf(err error) DTC {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return DTCNone
}
