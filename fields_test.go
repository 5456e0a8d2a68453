package stash

import (
	"testing"
	"time"
)

func TestFieldKeys(t *testing.T) {
	cases := []struct {
		name string
		got  string
	}{
		{"key", KeyKey.Field("user").Key().Name()},
		{"binding", KeyBinding.Field("id").Key().Name()},
		{"state", KeyState.Field("synced").Key().Name()},
		{"old_state", KeyOldState.Field("pending").Key().Name()},
		{"new_state", KeyNewState.Field("synced").Key().Name()},
		{"error", KeyError.Field("boom").Key().Name()},
		{"source", KeySource.Field("backend").Key().Name()},
		{"bytes", KeyBytes.Field(12).Key().Name()},
		{"duration", KeyDuration.Field(time.Millisecond).Key().Name()},
	}
	for _, tc := range cases {
		if tc.got != tc.name {
			t.Errorf("expected key %q, got %q", tc.name, tc.got)
		}
	}
}
