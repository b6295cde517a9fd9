package session

import (
	"testing"

	"github.com/matheus3301/rentchat/internal/config"
)

func TestResolvePrecedence(t *testing.T) {
	t.Setenv("RENTCHAT_HOME", t.TempDir())
	t.Setenv("RENTCHAT_SESSION", "")

	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("Resolve() with nothing configured = %q, want %q", got, DefaultSessionName)
	}

	if err := config.SetDefaultSession(ConfigPath(), "landlord"); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "landlord" {
		t.Errorf("Resolve() = %q, want config default", got)
	}

	t.Setenv("RENTCHAT_SESSION", "tenant")
	if got := Resolve(""); got != "tenant" {
		t.Errorf("Resolve() = %q, want env override", got)
	}

	if got := Resolve("agent"); got != "agent" {
		t.Errorf("Resolve(agent) = %q, want flag override", got)
	}
}
