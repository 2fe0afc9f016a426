// Package exitcode defines the process exit codes that make up c8ylp's
// public contract (see spec §6.7) and the error type used to carry one
// out of deeply wrapped errors.
package exitcode

import (
	"errors"
	"fmt"
)

// Code is a process exit status. The numeric values are part of the
// public contract and must never change.
type Code int

const (
	OK                                Code = 0
	NoSession                         Code = 2
	NotAuthorized                     Code = 3
	DeviceMissingRemoteAccessFragment Code = 5
	DeviceNoPassthroughConfig         Code = 6
	DeviceNoMatchingPassthroughConfig Code = 7
	MissingRoleRemoteAccessAdmin      Code = 8
	Unknown                           Code = 9
	SSHNotFound                       Code = 10
	TimeoutWaitForPort                Code = 11
	CommandNotFound                   Code = 12
	PluginExecutionError              Code = 20
	PluginInvalidFormat               Code = 21
	PluginNotFound                    Code = 22
	Terminate                         Code = 100
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case NoSession:
		return "NO_SESSION"
	case NotAuthorized:
		return "NOT_AUTHORIZED"
	case DeviceMissingRemoteAccessFragment:
		return "DEVICE_MISSING_REMOTE_ACCESS_FRAGMENT"
	case DeviceNoPassthroughConfig:
		return "DEVICE_NO_PASSTHROUGH_CONFIG"
	case DeviceNoMatchingPassthroughConfig:
		return "DEVICE_NO_MATCHING_PASSTHROUGH_CONFIG"
	case MissingRoleRemoteAccessAdmin:
		return "MISSING_ROLE_REMOTE_ACCESS_ADMIN"
	case SSHNotFound:
		return "SSH_NOT_FOUND"
	case TimeoutWaitForPort:
		return "TIMEOUT_WAIT_FOR_PORT"
	case CommandNotFound:
		return "COMMAND_NOT_FOUND"
	case PluginExecutionError:
		return "PLUGIN_EXECUTION_ERROR"
	case PluginInvalidFormat:
		return "PLUGIN_INVALID_FORMAT"
	case PluginNotFound:
		return "PLUGIN_NOT_FOUND"
	case Terminate:
		return "TERMINATE"
	default:
		return "UNKNOWN"
	}
}

// Error wraps an underlying error with the exit code the CLI should use
// when that error reaches main(). Use Wrap to construct one and errors.As
// to recover it through arbitrary fmt.Errorf("...: %w", err) wrapping.
type Error struct {
	Code Code
	Err  error
}

// Wrap constructs an *Error that carries code and formats like fmt.Errorf.
func Wrap(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode implements the interface main() probes for via errors.As.
func (e *Error) ExitCode() Code { return e.Code }

// From extracts the exit code carried by err, or Unknown if err is nil or
// doesn't carry one.
func From(err error) Code {
	if err == nil {
		return OK
	}
	var ec *Error
	if errors.As(err, &ec) {
		return ec.Code
	}
	return Unknown
}
