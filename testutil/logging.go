package testutil

import (
	"fmt"
	"os"
	"testing"

	"github.com/bitmark-inc/logger"
)

// LogConfig is the logger configuration used by tests,
// writing to dir at debug level without console output.
func LogConfig(dir string) logger.Configuration {
	return logger.Configuration{
		Directory: dir,
		File:      "test.log",
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "debug",
		},
	}
}

// Logging initialises the logger in a temporary directory,
// runs the tests,
// and cleans up.
// Call it from TestMain:
//
//	func TestMain(m *testing.M) { os.Exit(testutil.Logging(m)) }
func Logging(m *testing.M) int {
	dir, err := os.MkdirTemp("", "ethbstest")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer os.RemoveAll(dir)

	if err = logger.Initialise(LogConfig(dir)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Finalise()

	return m.Run()
}
