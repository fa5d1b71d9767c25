package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service the agent exposes.
const ServiceName = "outreach.v1.BrowserAgent"

const runTaskMethod = "/" + ServiceName + "/RunTask"

// Request and reply field names.
const (
	fieldTask             = "task"
	fieldInstruction      = "instruction"
	fieldBrowserContextID = "browser_context_id"
	fieldBrowserEndpoint  = "browser_endpoint"
	fieldDryRun           = "dry_run"
	fieldRunID            = "run_id"
	fieldSummary          = "summary"
	fieldError            = "error"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GrpcClient invokes the browser agent over gRPC.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	cfg    GrpcClientConfig
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// MaxSummaryBytes bounds the reply size.
	MaxSummaryBytes int
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
		MaxSummaryBytes:  4 << 20,
	}
}

// NewGrpcClient creates a client for the agent at cfg.Address. No network
// I/O happens until the first call or Ready.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultGrpcClientConfig()
	if cfg.Address == "" {
		cfg.Address = defaults.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = defaults.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = defaults.KeepaliveTimeout
	}
	if cfg.MaxSummaryBytes <= 0 {
		cfg.MaxSummaryBytes = defaults.MaxSummaryBytes
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.MaxSummaryBytes)),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create agent client for %s: %w", cfg.Address, err)
	}

	return &GrpcClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   cfg.Address,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Ready forces a connection attempt and checks the agent's health status.
func (c *GrpcClient) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	if err := waitForReady(ctx, c.conn); err != nil {
		return fmt.Errorf("agent at %s not ready: %w", c.addr, err)
	}
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("agent health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("agent at %s reports %s", c.addr, resp.GetStatus())
	}
	return nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Run sends one task to the agent and waits for its final summary. The
// call waits for the connection to become ready, bounded by ctx.
func (c *GrpcClient) Run(ctx context.Context, req TaskRequest) (string, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Invoking browser agent",
		"run_id", req.RunID,
		"task", req.Task,
		"dry_run", req.DryRun,
		"browser_context", req.Browser.ID,
	)

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, runTaskMethod, in, out, grpc.WaitForReady(true)); err != nil {
		return "", fmt.Errorf("agent call failed: %w", err)
	}
	return decodeReply(out)
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

func encodeRequest(req TaskRequest) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		fieldRunID:            req.RunID,
		fieldTask:             string(req.Task),
		fieldInstruction:      req.Instruction,
		fieldBrowserContextID: req.Browser.ID,
		fieldBrowserEndpoint:  req.Browser.Endpoint,
		fieldDryRun:           req.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("encode agent request: %w", err)
	}
	return in, nil
}

func decodeReply(out *structpb.Struct) (string, error) {
	f := out.GetFields()
	if msg := strings.TrimSpace(f[fieldError].GetStringValue()); msg != "" {
		return "", &RemoteError{Message: msg}
	}
	summary := f[fieldSummary].GetStringValue()
	if strings.TrimSpace(summary) == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

var _ BrowserAgent = (*GrpcClient)(nil)
