package app

import (
	"os"
	"strconv"
)

const testModeEnv = "TORQUE_TEST_MODE"

// InTestMode reports whether TORQUE_TEST_MODE asks the binaries to exit
// before dialing Postgres or Redis. Any value strconv.ParseBool accepts works.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}
