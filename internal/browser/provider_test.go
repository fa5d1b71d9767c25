package browser

import (
	"context"
	"testing"

	"github.com/ashureev/outreach-agent/internal/config"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
)

func TestStaticProviderPassesEndpointThrough(t *testing.T) {
	t.Parallel()
	p, err := New(config.BrowserConfig{Mode: config.BrowserModeStatic, Endpoint: "ws://127.0.0.1:9222"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	bc, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if bc.Endpoint != "ws://127.0.0.1:9222" || bc.ID == "" {
		t.Fatalf("unexpected context: %+v", bc)
	}
	if err := p.Release(context.Background()); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	t.Parallel()
	if _, err := New(config.BrowserConfig{Mode: "firecracker"}, nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestContainerSpec(t *testing.T) {
	t.Parallel()
	cfg := config.BrowserConfig{Image: "chromedp/headless-shell:latest", Port: 9333, ProfileDir: "/data/profile"}
	containerCfg, hostCfg := containerSpec(cfg)

	if containerCfg.Image != cfg.Image {
		t.Errorf("image = %q", containerCfg.Image)
	}
	port := nat.Port(devtoolsPort)
	if _, ok := containerCfg.ExposedPorts[port]; !ok {
		t.Errorf("devtools port not exposed: %v", containerCfg.ExposedPorts)
	}
	bindings := hostCfg.PortBindings[port]
	if len(bindings) != 1 || bindings[0].HostIP != "127.0.0.1" || bindings[0].HostPort != "9333" {
		t.Errorf("unexpected bindings: %+v", bindings)
	}
	if len(hostCfg.Mounts) != 1 {
		t.Fatalf("expected one mount, got %d", len(hostCfg.Mounts))
	}
	m := hostCfg.Mounts[0]
	if m.Type != mount.TypeVolume || m.Source != profileVolume || m.Target != "/data/profile" {
		t.Errorf("unexpected mount: %+v", m)
	}
}

func TestDevtoolsEndpointDefaultsPort(t *testing.T) {
	t.Parallel()
	if got := devtoolsEndpoint(0); got != "http://127.0.0.1:9222" {
		t.Fatalf("endpoint = %q", got)
	}
}
