package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/ashureev/outreach-agent/internal/config"
	"github.com/ashureev/outreach-agent/internal/domain"
)

const (
	containerName   = "outreach-browser"
	profileVolume   = "outreach-browser-profile"
	devtoolsPort    = "9222/tcp"
	stopTimeoutSecs = 10

	memoryLimitBytes = 1024 * 1024 * 1024 // 1GB
	shmSizeBytes     = 512 * 1024 * 1024

	createRetryAttempts = 20
	createRetryDelay    = 250 * time.Millisecond

	readyTimeout = 30 * time.Second
)

// DockerProvider keeps one named Chromium container with a persistent
// profile volume, so cookies survive between runs.
type DockerProvider struct {
	cli    *client.Client
	cfg    config.BrowserConfig
	http   *http.Client
	logger *slog.Logger
}

// NewDockerProvider creates a Docker-backed browser provider.
func NewDockerProvider(cfg config.BrowserConfig, logger *slog.Logger) (*DockerProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	logger.Info("Docker client initialized", "image", cfg.Image, "port", cfg.Port)
	return &DockerProvider{
		cli:    cli,
		cfg:    cfg,
		http:   &http.Client{Timeout: 2 * time.Second},
		logger: logger,
	}, nil
}

// Acquire ensures the browser container is running and answering on its
// DevTools port.
func (p *DockerProvider) Acquire(ctx context.Context) (domain.BrowserContext, error) {
	id, err := p.ensureContainer(ctx)
	if err != nil {
		return domain.BrowserContext{}, err
	}

	endpoint := devtoolsEndpoint(p.cfg.Port)
	if err := p.waitForDevtools(ctx, endpoint); err != nil {
		return domain.BrowserContext{}, fmt.Errorf("browser container %s not ready: %w", id, err)
	}
	return domain.BrowserContext{ID: containerName, Endpoint: endpoint}, nil
}

// Release stops the container when configured to do so. The profile volume
// is kept.
func (p *DockerProvider) Release(ctx context.Context) error {
	if !p.cfg.StopAfterRun {
		return nil
	}
	return p.stopContainer(ctx, containerName)
}

// Close releases the Docker client.
func (p *DockerProvider) Close() error {
	return p.cli.Close()
}

func (p *DockerProvider) ensureContainer(ctx context.Context) (string, error) {
	inspect, err := p.cli.ContainerInspect(ctx, containerName)
	switch {
	case err == nil:
		if inspect.State != nil && inspect.State.Running {
			p.logger.Debug("Browser container already running", "container_id", inspect.ID)
			return inspect.ID, nil
		}
		if inspect.Config != nil && inspect.Config.Image != p.cfg.Image {
			p.logger.Info("Browser image changed, recreating container", "container_id", inspect.ID, "image", p.cfg.Image)
			if err := p.stopContainer(ctx, inspect.ID); err != nil {
				p.logger.Warn("Failed to remove outdated browser container", "error", err, "container_id", inspect.ID)
			}
			break
		}
		p.logger.Info("Starting stopped browser container", "container_id", inspect.ID)
		if err := p.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("restart container %s: %w", inspect.ID, err)
		}
		return inspect.ID, nil
	case !errdefs.IsNotFound(err):
		return "", fmt.Errorf("inspect container %s: %w", containerName, err)
	}

	return p.createContainer(ctx)
}

func (p *DockerProvider) createContainer(ctx context.Context) (string, error) {
	cfg, hostCfg := containerSpec(p.cfg)

	p.logger.Info("Creating browser container", "image", p.cfg.Image, "volume", profileVolume)

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = p.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, containerName)
		if createErr == nil {
			break
		}
		if !isNameConflict(createErr) {
			return "", fmt.Errorf("create container: %w", createErr)
		}

		p.logger.Warn("Container name conflict during create, retrying",
			"container_name", containerName,
			"attempt", i+1,
			"error", createErr,
		)
		if inspect, inspectErr := p.cli.ContainerInspect(ctx, containerName); inspectErr == nil {
			if stopErr := p.stopContainer(ctx, inspect.ID); stopErr != nil {
				p.logger.Warn("Failed to stop conflicting container before retry", "container_id", inspect.ID, "error", stopErr)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	if createErr != nil {
		return "", fmt.Errorf("create container after retries: %w", createErr)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := p.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errors.Is(removeErr, context.Canceled) {
			p.logger.Warn("Failed to remove container after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	p.logger.Info("Browser container created and started", "container_id", resp.ID)
	return resp.ID, nil
}

// stopContainer stops and removes a container. It is idempotent.
func (p *DockerProvider) stopContainer(ctx context.Context, id string) error {
	if _, err := p.cli.ContainerInspect(ctx, id); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("inspect container %s: %w", id, err)
	}

	timeout := stopTimeoutSecs
	if err := p.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		p.logger.Debug("Container stop returned error, continuing to remove", "container_id", id, "error", err)
	}

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "is already in progress") {
			return nil
		}
		return fmt.Errorf("remove container %s: %w", id, err)
	}

	p.logger.Info("Browser container stopped", "container_id", id)
	return nil
}

func (p *DockerProvider) waitForDevtools(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	probe := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/json/version", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.http.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("devtools returned %s", resp.Status)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	return backoff.Retry(probe, backoff.WithContext(policy, ctx))
}

// containerSpec builds the container and host configuration. DevTools is
// published on loopback only.
func containerSpec(cfg config.BrowserConfig) (*container.Config, *container.HostConfig) {
	port := nat.Port(devtoolsPort)
	hostPort := cfg.Port
	if hostPort <= 0 {
		hostPort = 9222
	}

	containerCfg := &container.Config{
		Image:        cfg.Image,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels:       map[string]string{"app": "outreach-agent"},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(hostPort)}},
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: profileVolume,
			Target: cfg.ProfileDir,
		}},
		Resources: container.Resources{
			Memory: memoryLimitBytes,
		},
		ShmSize:       shmSizeBytes,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
	}
	return containerCfg, hostCfg
}

func devtoolsEndpoint(port int) string {
	if port <= 0 {
		port = 9222
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func isNameConflict(err error) bool {
	if errdefs.IsConflict(err) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "is already in use") || strings.Contains(s, "conflict")
}
