package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitmark-inc/logger"
)

func TestLogConfig(t *testing.T) {
	dir := t.TempDir()
	if err := logger.Initialise(LogConfig(dir)); err != nil {
		t.Fatal(err)
	}
	log := logger.New("testutil")
	log.Info("initialised")
	logger.Finalise()

	if _, err := os.Stat(filepath.Join(dir, "test.log")); err != nil {
		t.Errorf("log file: %s", err)
	}
}
