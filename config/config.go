// Package config holds the bridge configuration: the global receive
// settings, the six target slots, and the stage bounds used to clamp
// remote position input.
package config

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v3"
)

// MaxTargets is the number of configurable target slots.
const MaxTargets = 6

// Protocol selects the dialect spoken to a target.
type Protocol string

const (
	ProtocolDisabled Protocol = "disabled"
	ProtocolOSC      Protocol = "osc"
	ProtocolRemote   Protocol = "remote"
	ProtocolADMOSC   Protocol = "admosc"
	ProtocolOSCQuery Protocol = "oscquery"
	ProtocolPSN      Protocol = "psn"
	ProtocolRTTrP    Protocol = "rttrp"
	ProtocolQLab     Protocol = "qlab"
)

// Mode selects the transport used to reach a target.
type Mode string

const (
	ModeUDP Mode = "udp"
	ModeTCP Mode = "tcp"
)

// TargetConfig describes one remote endpoint slot. Slots are replaced
// wholesale on configuration change, never mutated field by field.
type TargetConfig struct {
	Name      string   `yaml:"name"`
	IP        string   `yaml:"ip"`
	Port      int      `yaml:"port"`
	Protocol  Protocol `yaml:"protocol"`
	Mode      Mode     `yaml:"mode"`
	RxEnabled bool     `yaml:"rx"`
	TxEnabled bool     `yaml:"tx"`
	QLabPatch int      `yaml:"qlab-patch"`
}

// Valid reports whether the slot describes a reachable endpoint.
func (t TargetConfig) Valid() bool {
	return t.Protocol != ProtocolDisabled && t.Protocol != "" &&
		t.IP != "" && t.Port >= 1 && t.Port <= 65535
}

// Active reports whether the slot should hold a live connection. QLab
// targets are always active; everything else needs rx or tx enabled.
// Validity is a separate question, checked at connect time.
func (t TargetConfig) Active() bool {
	if t.Protocol == ProtocolDisabled || t.Protocol == "" {
		return false
	}
	if t.Protocol == ProtocolQLab {
		return true
	}
	return t.RxEnabled || t.TxEnabled
}

// GlobalConfig carries the receive-side settings, read by the
// receivers at (re)start.
type GlobalConfig struct {
	UDPPort    int      `yaml:"udp-port"`
	TCPPort    int      `yaml:"tcp-port"`
	Interface  string   `yaml:"interface"`
	IPFilter   bool     `yaml:"ip-filter"`
	AllowedIPs []string `yaml:"allowed-ips"`
}

// File is the on-disk configuration document.
type File struct {
	Global  GlobalConfig             `yaml:"global"`
	Targets [MaxTargets]TargetConfig `yaml:"targets"`
	Stage   StageBounds              `yaml:"stage"`
}

// Load reads and unmarshals the configuration file at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	f := &File{Stage: DefaultStageBounds}
	if err := yaml.Unmarshal(raw, f); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config file")
	}
	return f, nil
}
