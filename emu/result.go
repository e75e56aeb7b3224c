package emu

import "fmt"

// Result is the status code returned by every chip command. Zero is success.
type Result int

const (
	ResultOK                 Result = 0
	ResultInvalidChannel     Result = 1
	ResultBusy               Result = 2
	ResultInvalidParam       Result = 3
	ResultUnsupported        Result = 4
	ResultOutOfResources     Result = 5
	ResultNoData             Result = 6
	ResultNotReserved        Result = 7
	ResultNoInstrument       Result = 8
	ResultNoWaveTable        Result = 9
	ResultDuplicateWaveTable Result = 10
	ResultLoopOutOfRange     Result = 13
)

var resultNames = map[Result]string{
	ResultOK:                 "ok",
	ResultInvalidChannel:     "invalid channel",
	ResultBusy:               "channel busy",
	ResultInvalidParam:       "invalid parameter",
	ResultUnsupported:        "unsupported command",
	ResultOutOfResources:     "out of resources",
	ResultNoData:             "no data",
	ResultNotReserved:        "channel not reserved",
	ResultNoInstrument:       "no instrument",
	ResultNoWaveTable:        "no wave table",
	ResultDuplicateWaveTable: "duplicate wave table",
	ResultLoopOutOfRange:     "loop out of range",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Error implements error so a Result can travel through error returns.
func (r Result) Error() string {
	return fmt.Sprintf("emu: %s (%d)", r.String(), int(r))
}

// Err returns nil for ResultOK and the Result itself otherwise.
func (r Result) Err() error {
	if r == ResultOK {
		return nil
	}
	return r
}
