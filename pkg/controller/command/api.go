/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package command

import (
	"io"
)

// Exec is controller command execution function type.
type Exec func(rw io.Writer, req io.Reader) Error

// Handler for each controller command.
type Handler interface {
	// Name of the command.
	Name() string
	// Method name of the command.
	Method() string
	// Handle returns the execute function of the command.
	Handle() Exec
}
