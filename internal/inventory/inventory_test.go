package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eniac111/ftl2/internal/types"
	"github.com/stretchr/testify/require"
)

func writeInventory(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadStaticResolvesGroupsAndChildren(t *testing.T) {
	path := writeInventory(t, `
web:
  hosts:
    web01: {ansible_host: 10.0.0.1}
    web02: {ansible_host: 10.0.0.2}
  vars:
    env: prod
db:
  hosts:
    db01: {ansible_host: 10.0.0.3}
prod:
  children: [web, db]
`)
	inv, err := Load(path, nil)
	require.NoError(t, err)

	hosts, err := inv.Hosts("prod")
	require.NoError(t, err)
	names := hostNames(hosts)
	require.Equal(t, []string{"web01", "web02", "db01"}, names)

	webHosts, err := inv.Hosts("web")
	require.NoError(t, err)
	require.Equal(t, "prod", webHosts[0].Vars["env"])
}

func TestHostsDedupesAndPreservesDeclarationOrder(t *testing.T) {
	path := writeInventory(t, `
a:
  hosts:
    h1: {}
    h2: {}
b:
  hosts:
    h2: {}
    h3: {}
`)
	inv, err := Load(path, nil)
	require.NoError(t, err)

	hosts, err := inv.Hosts([]string{"b", "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"h1", "h2", "h3"}, hostNames(hosts))
}

func TestHostsUnknownSelectorErrors(t *testing.T) {
	path := writeInventory(t, "web:\n  hosts:\n    web01: {}\n")
	inv, err := Load(path, nil)
	require.NoError(t, err)

	_, err = inv.Hosts("nope")
	require.Error(t, err)
}

func TestLoadStaticUnknownChildErrors(t *testing.T) {
	path := writeInventory(t, `
prod:
  children: [ghost]
`)
	_, err := Load(path, nil)
	require.Error(t, err)
}

func TestAddHostIsVisibleImmediately(t *testing.T) {
	inv := New(nil)
	require.NoError(t, inv.AddHost("dyn01", map[string]string{"ansible_host": "10.0.0.9"}))

	hosts, err := inv.Hosts("dyn01")
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	require.Equal(t, "10.0.0.9", hosts[0].Address)

	all, err := inv.Hosts("all")
	require.NoError(t, err)
	require.Contains(t, hostNames(all), "dyn01")
}

func hostNames(hosts []types.Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.Name
	}
	return out
}
