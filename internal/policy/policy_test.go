package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyPolicyAllowsEverything(t *testing.T) {
	require.NoError(t, Empty().Evaluate("shell", "web01", "prod", nil))
}

func TestDenyMatchesModuleAndEnvironment(t *testing.T) {
	p := &Policy{Rules: []Rule{
		{Decision: "deny", Match: map[string]string{"module": "shell", "environment": "prod"}, Reason: "use proper modules in production"},
	}}

	err := p.Evaluate("shell", "web01", "prod", map[string]any{"cmd": "id"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "use proper modules in production")

	require.NoError(t, p.Evaluate("shell", "web01", "staging", nil))
	require.NoError(t, p.Evaluate("file", "web01", "prod", nil))
}

func TestFirstMatchingDenyWinsOverLaterAllowIntent(t *testing.T) {
	// Policy is deny-only: once one deny rule matches, subsequent rules
	// (even ones that would look permissive) never run.
	p := &Policy{Rules: []Rule{
		{Decision: "deny", Match: map[string]string{"module": "*"}, Reason: "blanket deny"},
		{Decision: "deny", Match: map[string]string{"module": "ping"}, Reason: "should never be reached"},
	}}
	err := p.Evaluate("ping", "web01", "prod", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "blanket deny")
}

func TestParamGlobMatch(t *testing.T) {
	p := &Policy{Rules: []Rule{
		{Decision: "deny", Match: map[string]string{"module": "file", "param.path": "/etc/*"}, Reason: "no /etc writes"},
	}}
	require.Error(t, p.Evaluate("file", "web01", "prod", map[string]any{"path": "/etc/passwd"}))
	require.NoError(t, p.Evaluate("file", "web01", "prod", map[string]any{"path": "/tmp/x"}))
}

func TestUnknownMatchKeyNeverMatches(t *testing.T) {
	p := &Policy{Rules: []Rule{
		{Decision: "deny", Match: map[string]string{"bogus": "*"}, Reason: "n/a"},
	}}
	require.NoError(t, p.Evaluate("file", "web01", "prod", nil))
}
