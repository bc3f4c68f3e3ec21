// Package inventory implements FTL2's host/group model: loading
// static YAML/JSON inventory files and executable inventories, resolving
// selectors to ordered de-duplicated host lists, and dynamic add_host backed
// by the state store.
package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/eniac111/ftl2/internal/state"
	"github.com/eniac111/ftl2/internal/types"
	"gopkg.in/yaml.v3"
)

const allGroup = "all"

// Inventory is the resolved group -> host-name-set model plus the ordered
// declaration list needed for stable selector resolution.
type Inventory struct {
	mu     sync.RWMutex
	order  []string // host names in declaration order
	hosts  map[string]types.Host
	groups map[string][]string // group -> ordered member host names
	store  *state.Store        // nil when add_host persistence is disabled
}

// New returns an empty inventory, optionally backed by a state store for
// add_host persistence.
func New(store *state.Store) *Inventory {
	return &Inventory{
		hosts:  map[string]types.Host{},
		groups: map[string][]string{allGroup: {}},
		store:  store,
	}
}

// Load parses a static inventory document (YAML or JSON) or, if the file
// at path is executable, runs it with --list and parses its stdout per
// the executable-inventory convention.
func Load(path string, store *state.Store) (*Inventory, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, types.NewError(types.KindInventoryInvalid, "cannot stat inventory file", err)
	}

	inv := New(store)

	if info.Mode()&0o111 != 0 {
		doc, err := runExecutableInventory(path)
		if err != nil {
			return nil, err
		}
		if err := inv.loadExecutable(doc); err != nil {
			return nil, err
		}
		return inv, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.KindInventoryInvalid, "cannot read inventory file", err)
	}
	doc, err := parseStaticDoc(data)
	if err != nil {
		return nil, err
	}
	if err := inv.loadStatic(doc); err != nil {
		return nil, err
	}
	return inv, nil
}

// orderedGroup pairs a parsed InventoryGroup with the declaration order of
// its own host keys, since decoding straight into a Go map (as
// InventoryGroup.Hosts does) discards YAML mapping-key order.
type orderedGroup struct {
	name      string
	group     types.InventoryGroup
	hostOrder []string
}

// parseStaticDoc walks the document as a yaml.Node tree rather than
// decoding straight into a map, so that group order and each group's host
// order survive — a plain map[string]InventoryGroup would randomize both.
// YAML is a JSON superset so this also accepts JSON input, matching
// "YAML or JSON" wording.
func parseStaticDoc(data []byte) ([]orderedGroup, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, types.NewError(types.KindInventoryInvalid, "malformed inventory document", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, types.NewError(types.KindInventoryInvalid, "inventory document must be a mapping of group name to group body", nil)
	}

	groups := make([]orderedGroup, 0, len(top.Content)/2)
	for i := 0; i+1 < len(top.Content); i += 2 {
		keyNode, valNode := top.Content[i], top.Content[i+1]
		var g types.InventoryGroup
		if err := valNode.Decode(&g); err != nil {
			return nil, types.NewError(types.KindInventoryInvalid, fmt.Sprintf("malformed group %q", keyNode.Value), err)
		}
		groups = append(groups, orderedGroup{name: keyNode.Value, group: g, hostOrder: hostKeyOrder(valNode)})
	}
	return groups, nil
}

// hostKeyOrder returns the declaration order of a group's "hosts" mapping
// keys, or nil if the group has no hosts entry.
func hostKeyOrder(groupNode *yaml.Node) []string {
	for i := 0; i+1 < len(groupNode.Content); i += 2 {
		if groupNode.Content[i].Value != "hosts" {
			continue
		}
		hostsNode := groupNode.Content[i+1]
		order := make([]string, 0, len(hostsNode.Content)/2)
		for j := 0; j+1 < len(hostsNode.Content); j += 2 {
			order = append(order, hostsNode.Content[j].Value)
		}
		return order
	}
	return nil
}

func runExecutableInventory(path string) (types.ExecutableListOutput, error) {
	var out types.ExecutableListOutput
	cmd := exec.Command(path, "--list")
	stdout, err := cmd.Output()
	if err != nil {
		return out, types.NewError(types.KindInventoryInvalid, "executable inventory failed", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return out, types.NewError(types.KindInventoryInvalid, "executable inventory produced invalid JSON", err)
	}
	out.Groups = map[string]types.ExecutableGroup{}
	for key, msg := range raw {
		if key == "_meta" {
			if err := json.Unmarshal(msg, &out.Meta); err != nil {
				return out, types.NewError(types.KindInventoryInvalid, "invalid _meta block", err)
			}
			continue
		}
		var g types.ExecutableGroup
		if err := json.Unmarshal(msg, &g); err != nil {
			return out, types.NewError(types.KindInventoryInvalid, fmt.Sprintf("invalid group %q", key), err)
		}
		out.Groups[key] = g
	}
	return out, nil
}

func (inv *Inventory) loadStatic(groups []orderedGroup) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, og := range groups {
		for _, hostName := range og.hostOrder {
			attrs := og.group.Hosts[hostName]
			h := types.HostFromAttrs(hostName, attrs)
			for k, v := range og.group.Vars {
				if h.Vars == nil {
					h.Vars = map[string]string{}
				}
				if _, exists := h.Vars[k]; !exists {
					h.Vars[k] = v
				}
			}
			inv.addHostLocked(h)
			inv.addToGroupLocked(og.name, hostName)
			inv.addToGroupLocked(allGroup, hostName)
		}
	}

	// Resolve children transitively, repeating until no group gains a
	// member, so nesting works whatever order groups are declared in;
	// references to undeclared groups are invalid.
	declared := map[string]bool{allGroup: true}
	for _, og := range groups {
		declared[og.name] = true
	}
	for changed := true; changed; {
		changed = false
		for _, og := range groups {
			for _, child := range og.group.Children {
				if !declared[child] {
					return types.NewError(types.KindInventoryInvalid,
						fmt.Sprintf("group %q references unknown child %q", og.name, child), nil)
				}
				for _, hostName := range inv.groups[child] {
					before := len(inv.groups[og.name])
					inv.addToGroupLocked(og.name, hostName)
					changed = changed || len(inv.groups[og.name]) > before
				}
			}
		}
	}
	return nil
}

func (inv *Inventory) loadExecutable(doc types.ExecutableListOutput) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for groupName, group := range doc.Groups {
		for _, hostName := range group.Hosts {
			attrs := doc.Meta.HostVars[hostName]
			h := types.HostFromAttrs(hostName, attrs)
			for k, v := range group.Vars {
				if h.Vars == nil {
					h.Vars = map[string]string{}
				}
				if _, exists := h.Vars[k]; !exists {
					h.Vars[k] = v
				}
			}
			inv.addHostLocked(h)
			inv.addToGroupLocked(groupName, hostName)
			inv.addToGroupLocked(allGroup, hostName)
		}
	}
	return nil
}

func (inv *Inventory) addHostLocked(h types.Host) {
	if _, exists := inv.hosts[h.Name]; !exists {
		inv.order = append(inv.order, h.Name)
	}
	inv.hosts[h.Name] = h
}

func (inv *Inventory) addToGroupLocked(group, hostName string) {
	for _, existing := range inv.groups[group] {
		if existing == hostName {
			return
		}
	}
	inv.groups[group] = append(inv.groups[group], hostName)
}

// Hosts resolves a selector — a host name, a group name, or a list of
// either — to an ordered, de-duplicated list of Host, stable in inventory
// declaration order.
func (inv *Inventory) Hosts(selector any) ([]types.Host, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	names, err := inv.resolveNamesLocked(selector)
	if err != nil {
		return nil, err
	}
	out := make([]types.Host, 0, len(names))
	for _, name := range names {
		h, ok := inv.hosts[name]
		if !ok {
			return nil, types.NewError(types.KindInventoryInvalid, fmt.Sprintf("unknown host %q", name), nil)
		}
		out = append(out, h)
	}
	return out, nil
}

func (inv *Inventory) resolveNamesLocked(selector any) ([]string, error) {
	switch v := selector.(type) {
	case string:
		if members, ok := inv.groups[v]; ok {
			return dedupeInOrder(inv.order, members), nil
		}
		if _, ok := inv.hosts[v]; ok {
			return []string{v}, nil
		}
		return nil, types.NewError(types.KindInventoryInvalid, fmt.Sprintf("unknown selector %q", v), nil)
	case []string:
		var all []string
		for _, s := range v {
			names, err := inv.resolveNamesLocked(s)
			if err != nil {
				return nil, err
			}
			all = append(all, names...)
		}
		return dedupeInOrder(inv.order, all), nil
	default:
		return nil, types.NewError(types.KindInventoryInvalid, "selector must be a host name, group name, or list", nil)
	}
}

// dedupeInOrder returns the subset of declOrder present in names, in
// declaration order, with duplicates removed, regardless of the order
// names were gathered in.
func dedupeInOrder(declOrder []string, names []string) []string {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]string, 0, len(want))
	for _, n := range declOrder {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}

// AddHost inserts or updates a dynamic host and persists it via the state
// store. Safe for concurrent use with Hosts; readers observe a
// consistent snapshot taken under the inventory's own lock.
func (inv *Inventory) AddHost(name string, attrs map[string]string) error {
	h := types.HostFromAttrs(name, attrs)

	inv.mu.Lock()
	inv.addHostLocked(h)
	inv.addToGroupLocked(allGroup, name)
	inv.mu.Unlock()

	if inv.store != nil {
		inv.store.PutHost(name, h.Attrs())
	}
	return nil
}

// Groups returns the known group names, "all" included.
func (inv *Inventory) Groups() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]string, 0, len(inv.groups))
	for g := range inv.groups {
		out = append(out, g)
	}
	return out
}

// LoadDynamicHosts merges hosts persisted in the state store into the
// inventory, called once at context entry so add_host survives restarts.
func (inv *Inventory) LoadDynamicHosts() {
	if inv.store == nil {
		return
	}
	for name, attrs := range inv.store.Hosts() {
		h := types.HostFromAttrs(name, attrs)
		inv.mu.Lock()
		inv.addHostLocked(h)
		inv.addToGroupLocked(allGroup, name)
		inv.mu.Unlock()
	}
}
