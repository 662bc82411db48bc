// Package pigpio is a client for the pigpiod socket interface.
//
// Every command is a 16 byte little-endian frame:
//
//	CMD(4) P1(4) P2(4) P3(4)
//
// and every reply echoes CMD P1 P2 followed by a signed 32 bit result.
// A negative result is a daemon-side error code.
package pigpio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Command numbers understood by pigpiod.
const (
	cmdModes = 0
	cmdModeg = 1
	cmdPud   = 2
	cmdRead  = 3
	cmdWrite = 4
	cmdTick  = 16
	cmdHwver = 17
)

const frameLen = 16

// DefaultPort is the port pigpiod listens on unless started with -p.
const DefaultPort = 8888

var commandNames = map[uint32]string{
	cmdModes: "MODES",
	cmdModeg: "MODEG",
	cmdPud:   "PUD",
	cmdRead:  "READ",
	cmdWrite: "WRITE",
	cmdTick:  "TICK",
	cmdHwver: "HWVER",
}

// Error is a negative result returned by the daemon.
type Error struct {
	Cmd  uint32
	Code int32
}

func (e *Error) Error() string {
	name, ok := errorNames[e.Code]
	if !ok {
		name = "unknown error"
	}
	return fmt.Sprintf("pigpio: %s failed: %s (%d)", commandName(e.Cmd), name, e.Code)
}

// Daemon error codes relevant to the commands used here.
const (
	ErrBadGPIO      int32 = -3
	ErrBadMode      int32 = -4
	ErrBadLevel     int32 = -5
	ErrBadPUD       int32 = -6
	ErrNotPermitted int32 = -41
	ErrSomePermit   int32 = -42
	ErrUnknownCmd   int32 = -88
)

var errorNames = map[int32]string{
	ErrBadGPIO:      "PI_BAD_GPIO",
	ErrBadMode:      "PI_BAD_MODE",
	ErrBadLevel:     "PI_BAD_LEVEL",
	ErrBadPUD:       "PI_BAD_PUD",
	ErrNotPermitted: "PI_NOT_PERMITTED",
	ErrSomePermit:   "PI_SOME_PERMITTED",
	ErrUnknownCmd:   "PI_UNKNOWN_COMMAND",
}

var errShortReply = errors.New("pigpio: short reply")

func commandName(cmd uint32) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("CMD%d", cmd)
}

// encodeCommand builds one request frame.
func encodeCommand(cmd, p1, p2 uint32) []byte {
	b := make([]byte, frameLen)
	binary.LittleEndian.PutUint32(b[0:4], cmd)
	binary.LittleEndian.PutUint32(b[4:8], p1)
	binary.LittleEndian.PutUint32(b[8:12], p2)
	binary.LittleEndian.PutUint32(b[12:16], 0)
	return b
}

// decodeReply extracts the result from one reply frame.
func decodeReply(b []byte, cmd uint32) (int32, error) {
	if len(b) < frameLen {
		return 0, errShortReply
	}
	if got := binary.LittleEndian.Uint32(b[0:4]); got != cmd {
		return 0, fmt.Errorf("pigpio: reply for %s while waiting for %s", commandName(got), commandName(cmd))
	}
	res := int32(binary.LittleEndian.Uint32(b[12:16]))
	if res < 0 {
		return res, &Error{Cmd: cmd, Code: res}
	}
	return res, nil
}
