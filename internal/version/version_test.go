package version

import "testing"

func TestString(t *testing.T) {
	orig := [3]string{Version, GitSHA, BuildTime}
	t.Cleanup(func() { Version, GitSHA, BuildTime = orig[0], orig[1], orig[2] })

	Version, GitSHA, BuildTime = "0.3.1", "abc1234", "2025-03-01T09:00:00Z"
	want := "pulsemon 0.3.1 (git abc1234, built 2025-03-01T09:00:00Z)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
