package types

import "strconv"

// Transport names the connection mechanism used to reach a Host.
type Transport string

const (
	TransportLocal Transport = "local"
	TransportSSH   Transport = "ssh"
)

// Host is one target of module execution. Identity is Name, unique within a
// run. Dynamic hosts created via add_host are persisted through
// the state store and reloaded on subsequent runs.
type Host struct {
	Name      string            `json:"name"`
	Transport Transport         `json:"transport"`
	Address   string            `json:"address,omitempty"`
	Port      int               `json:"port,omitempty"`
	User      string            `json:"user,omitempty"`
	KeyPath   string            `json:"key_path,omitempty"`
	Password  string            `json:"password,omitempty"`
	Vars      map[string]string `json:"vars,omitempty"`

	// OS/Arch/InterpreterVer describe the target's platform, so a bundle
	// built for this host gets a fingerprint that actually differs from
	// one built for a host on a different platform. They come from the
	// ansible_system/ansible_architecture/ansible_interpreter_version
	// attributes, set either by hand in inventory or through add_host. The
	// setup module's facts report ansible_system and ansible_architecture;
	// they do not include ansible_interpreter_version.
	// Left blank, Builder.Build falls back to the controller's own
	// runtime.GOOS/GOARCH.
	OS             string `json:"os,omitempty"`
	Arch           string `json:"arch,omitempty"`
	InterpreterVer string `json:"interpreter_version,omitempty"`
}

// Attrs renders the host's ansible-style connection attributes plus vars as
// a flat map, the shape add_host and the state store persist.
func (h Host) Attrs() map[string]string {
	out := make(map[string]string, len(h.Vars)+5)
	for k, v := range h.Vars {
		out[k] = v
	}
	if h.Address != "" {
		out["ansible_host"] = h.Address
	}
	if h.Port != 0 {
		out["ansible_port"] = strconv.Itoa(h.Port)
	}
	if h.User != "" {
		out["ansible_user"] = h.User
	}
	if h.Password != "" {
		out["ansible_password"] = h.Password
	}
	if h.KeyPath != "" {
		out["ansible_ssh_private_key_file"] = h.KeyPath
	}
	if h.OS != "" {
		out["ansible_system"] = h.OS
	}
	if h.Arch != "" {
		out["ansible_architecture"] = h.Arch
	}
	if h.InterpreterVer != "" {
		out["ansible_interpreter_version"] = h.InterpreterVer
	}
	return out
}

// HostFromAttrs builds a Host from the recognized ansible_* attribute
// keys; any other key becomes a host variable.
func HostFromAttrs(name string, attrs map[string]string) Host {
	h := Host{Name: name, Transport: TransportSSH, Vars: map[string]string{}}
	if name == "localhost" || name == "local" {
		h.Transport = TransportLocal
	}
	for k, v := range attrs {
		switch k {
		case "ansible_host":
			h.Address = v
		case "ansible_port":
			if p, err := strconv.Atoi(v); err == nil {
				h.Port = p
			}
		case "ansible_user":
			h.User = v
		case "ansible_password":
			h.Password = v
		case "ansible_ssh_private_key_file":
			h.KeyPath = v
		case "ansible_system":
			h.OS = v
		case "ansible_architecture":
			h.Arch = v
		case "ansible_interpreter_version":
			h.InterpreterVer = v
		default:
			h.Vars[k] = v
		}
	}
	if h.Address == "" && h.Transport == TransportSSH {
		h.Address = name
	}
	return h
}
