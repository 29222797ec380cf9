package tests

import (
	"os"
	"testing"

	"github.com/edulab/lectura/core"
)

func TestMain(m *testing.M) {
	// debug mode leaks raw error strings into responses; run like PROD
	core.Conf.Debug = false
	core.Conf.TestMode = true

	os.Exit(m.Run())
}
