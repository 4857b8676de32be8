package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	customLogger := func(format string, v ...interface{}) {
		called = true
	}

	SetLogger(customLogger)
	Logf("test message")

	if !called {
		t.Error("Custom logger was not called")
	}

	// Setting nil should install a no-op, not panic.
	SetLogger(nil)
	Logf("test message")

	noOpCalled := false
	testLogger := func(format string, v ...interface{}) {
		noOpCalled = true
	}
	SetLogger(testLogger)
	Logf("test")
	if !noOpCalled {
		t.Error("Test logger should have been called")
	}

	noOpCalled = false
	SetLogger(nil)
	Logf("test")
	if noOpCalled {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}

func TestDebugf_MutedByDefault(t *testing.T) {
	original := Debugf
	defer func() { Debugf = original }()

	// Default Debugf must be callable and silent.
	Debugf("high volume detail: %d", 42)

	called := false
	SetDebugLogger(func(format string, v ...interface{}) {
		called = true
	})
	Debugf("now visible")
	if !called {
		t.Error("Debug logger was not called after SetDebugLogger")
	}

	called = false
	SetDebugLogger(nil)
	Debugf("muted again")
	if called {
		t.Error("Debug logger should be muted after SetDebugLogger(nil)")
	}
}
