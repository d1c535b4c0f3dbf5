package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const sampleYAML = `
global:
  udp-port: 9000
  tcp-port: 9001
  ip-filter: true
  allowed-ips: ["10.0.0.5"]
targets:
  - name: processor
    ip: 10.0.0.5
    port: 8000
    protocol: osc
    mode: udp
    rx: true
    tx: true
  - name: tablet
    ip: 10.0.0.20
    port: 8100
    protocol: remote
    mode: tcp
    tx: true
  - name: cues
    ip: 10.0.0.30
    port: 53000
    protocol: qlab
    mode: tcp
    qlab-patch: 2
stage:
  x-min: -8
  x-max: 8
  y-min: -6
  y-max: 6
  z-max: 4
  max-distance: 9
  coordinates: cylindrical
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	f, err := Load(writeTemp(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Global.UDPPort != 9000 || f.Global.TCPPort != 9001 {
		t.Errorf("global ports = %d/%d", f.Global.UDPPort, f.Global.TCPPort)
	}
	if !f.Global.IPFilter || len(f.Global.AllowedIPs) != 1 {
		t.Errorf("ip filter = %v %v", f.Global.IPFilter, f.Global.AllowedIPs)
	}
	if f.Targets[0].Protocol != ProtocolOSC || f.Targets[0].Mode != ModeUDP {
		t.Errorf("target 0 = %+v", f.Targets[0])
	}
	if f.Targets[2].QLabPatch != 2 {
		t.Errorf("target 2 patch = %d", f.Targets[2].QLabPatch)
	}
	if f.Targets[3].Valid() {
		t.Error("empty slot reported valid")
	}
	if f.Stage.Coordinates != CoordCylindrical {
		t.Errorf("stage coordinates = %q", f.Stage.Coordinates)
	}
}

func TestTargetValidActive(t *testing.T) {
	cases := []struct {
		name   string
		tc     TargetConfig
		valid  bool
		active bool
	}{
		{"disabled", TargetConfig{IP: "1.2.3.4", Port: 80}, false, false},
		{"no ip", TargetConfig{Protocol: ProtocolOSC, Port: 80}, false, false},
		{"port zero", TargetConfig{Protocol: ProtocolOSC, IP: "1.2.3.4"}, false, false},
		{"port high", TargetConfig{Protocol: ProtocolOSC, IP: "1.2.3.4", Port: 70000}, false, false},
		{"valid idle", TargetConfig{Protocol: ProtocolOSC, IP: "1.2.3.4", Port: 80}, true, false},
		{"rx only", TargetConfig{Protocol: ProtocolOSC, IP: "1.2.3.4", Port: 80, RxEnabled: true}, true, true},
		{"tx only", TargetConfig{Protocol: ProtocolRemote, IP: "1.2.3.4", Port: 80, TxEnabled: true}, true, true},
		{"qlab always", TargetConfig{Protocol: ProtocolQLab, IP: "1.2.3.4", Port: 80}, true, true},
	}
	for _, c := range cases {
		if got := c.tc.Valid(); got != c.valid {
			t.Errorf("%s: Valid() = %t, want %t", c.name, got, c.valid)
		}
		if got := c.tc.Active(); got != c.active {
			t.Errorf("%s: Active() = %t, want %t", c.name, got, c.active)
		}
	}
}

func TestEnumYAMLRoundTrip(t *testing.T) {
	in := TargetConfig{
		Name: "t", IP: "1.2.3.4", Port: 1,
		Protocol: ProtocolADMOSC, Mode: ModeTCP,
	}
	raw, err := yaml.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out TargetConfig
	if err := yaml.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip:\nwant %+v\n got %+v", in, out)
	}
}

func TestStageBoundsClamp(t *testing.T) {
	s := DefaultStageBounds
	if got := s.Clamp(AxisX, 99); got != s.XMax {
		t.Errorf("Clamp(x, 99) = %g, want %g", got, s.XMax)
	}
	if got := s.Clamp(AxisX, -99); got != s.XMin {
		t.Errorf("Clamp(x, -99) = %g, want %g", got, s.XMin)
	}
	if got := s.Clamp(AxisY, 3); got != 3 {
		t.Errorf("Clamp(y, 3) = %g, want 3", got)
	}
	if got := s.Clamp(AxisZ, -1); got != 0 {
		t.Errorf("Clamp(z, -1) = %g, want 0", got)
	}
}

func TestClampDistance(t *testing.T) {
	s := StageBounds{MaxDistance: 5, Coordinates: CoordCylindrical}
	x, y, z := s.ClampDistance(6, 8, 3)
	// 6-8-10 triangle scaled onto radius 5.
	if x != 3 || y != 4 || z != 3 {
		t.Errorf("cylindrical clamp = %g,%g,%g, want 3,4,3", x, y, z)
	}

	s.Coordinates = CoordSpherical
	x, y, z = s.ClampDistance(0, 0, 10)
	if z != 5 || x != 0 || y != 0 {
		t.Errorf("spherical clamp = %g,%g,%g, want 0,0,5", x, y, z)
	}

	s.Coordinates = CoordCartesian
	x, y, z = s.ClampDistance(100, 100, 100)
	if x != 100 || y != 100 || z != 100 {
		t.Errorf("cartesian mode moved the point: %g,%g,%g", x, y, z)
	}
}

func TestWatchAppliesRewrittenConfig(t *testing.T) {
	path := writeTemp(t, sampleYAML)

	applied := make(chan *File, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		Watch(ctx, path, func(f *File) {
			select {
			case applied <- f:
			default:
			}
		})
	}()

	// Give the watcher a moment to register, then rewrite.
	time.Sleep(100 * time.Millisecond)
	changed := sampleYAML + "\n# touched\n"
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-applied:
		if f.Global.UDPPort != 9000 {
			t.Errorf("reloaded udp port = %d", f.Global.UDPPort)
		}
	case <-ctx.Done():
		t.Fatal("watcher never applied the rewritten config")
	}
	cancel()
	<-done
}
