package env

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PIPELINE_TEST_STRING", "value")
	t.Setenv("PIPELINE_TEST_BOOL", "true")
	t.Setenv("PIPELINE_TEST_DURATION", "2s")

	if got := String("PIPELINE_TEST_STRING", "def"); got != "value" {
		t.Fatalf("String()=%q", got)
	}
	if got := String("PIPELINE_TEST_MISSING", "def"); got != "def" {
		t.Fatalf("String() default=%q", got)
	}
	if got, err := Bool("PIPELINE_TEST_BOOL", false); err != nil || !got {
		t.Fatalf("Bool()=%v err=%v", got, err)
	}
	if got, err := Duration("PIPELINE_TEST_DURATION", time.Second); err != nil || got != 2*time.Second {
		t.Fatalf("Duration()=%v err=%v", got, err)
	}
}

func TestEnvHelpersInvalid(t *testing.T) {
	t.Setenv("PIPELINE_TEST_BOOL", "nope")
	t.Setenv("PIPELINE_TEST_DURATION", "nope")

	if _, err := Bool("PIPELINE_TEST_BOOL", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
	if _, err := Duration("PIPELINE_TEST_DURATION", time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}
