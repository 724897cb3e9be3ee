package logging_test

import (
	"testing"

	"mavrelay/pkg/logging"
)

func TestNewAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		log, err := logging.New(level)
		if err != nil {
			t.Fatalf("level %q: %v", level, err)
		}
		if log == nil {
			t.Fatalf("level %q: expected a non-nil logger", level)
		}
		_ = log.Sync()
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := logging.New("verbose"); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
}
