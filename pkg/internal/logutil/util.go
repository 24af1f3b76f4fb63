/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package logutil formats controller log lines as command=[..] action=[..] key=[value] pairs.
package logutil

import (
	"fmt"
	"strings"

	"github.com/hyperledger/aries-framework-go/spi/log"
)

// LogError logs a failed controller action.
func LogError(logger log.Logger, command, action, errMsg string, data ...string) {
	logger.Errorf("%s errMsg=[%s]", prefix(command, action, data), errMsg)
}

// LogDebug logs a controller action at debug level.
func LogDebug(logger log.Logger, command, action, msg string, data ...string) {
	logger.Debugf("%s msg=[%s]", prefix(command, action, data), msg)
}

// LogInfo logs a controller action at info level.
func LogInfo(logger log.Logger, command, action, msg string, data ...string) {
	logger.Infof("%s msg=[%s]", prefix(command, action, data), msg)
}

// CreateKeyValueString renders one key=[value] pair.
func CreateKeyValueString(key, val string) string {
	return fmt.Sprintf("%s=[%s]", key, val)
}

func prefix(command, action string, data []string) string {
	fields := make([]string, 0, len(data)+2)
	fields = append(fields, CreateKeyValueString("command", command), CreateKeyValueString("action", action))
	fields = append(fields, data...)

	return strings.Join(fields, " ")
}
