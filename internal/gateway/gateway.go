package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/stagelink/tally-core/internal/device"
	"github.com/stagelink/tally-core/internal/infrastructure/config"
)

// Default command timeouts, applied when config leaves them unset.
const (
	defaultCommandTimeout = 5 * time.Second
	defaultEraseTimeout   = 10 * time.Second
	defaultUploadTimeout  = 90 * time.Second
	defaultProbeTimeout   = 2 * time.Second
)

// Outcome classifies how a device command resolved.
type Outcome string

const (
	// OutcomeSuccess means the device acknowledged the command.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure means an explicit error response or a plain timeout.
	OutcomeFailure Outcome = "failure"

	// OutcomeAssumedSuccess means the connection was reset mid-exchange,
	// which for restart and firmware commands is the expected signature
	// of the device rebooting or flashing itself.
	OutcomeAssumedSuccess Outcome = "assumed_success"
)

// Result is the finalized state of one device command.
type Result struct {
	Outcome Outcome
	Message string
}

// OK reports whether the command should be treated as having worked.
// AssumedSuccess counts as working.
func (r Result) OK() bool {
	return r.Outcome != OutcomeFailure
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Gateway sends commands to devices over their local HTTP API.
//
// Commands to distinct devices may run concurrently; each request carries
// its own timeout and never holds any registry lock.
type Gateway struct {
	client         *http.Client
	commandTimeout time.Duration
	eraseTimeout   time.Duration
	uploadTimeout  time.Duration
	probeTimeout   time.Duration
	logger         Logger
}

// New creates a gateway with timeouts from config (seconds).
func New(cfg config.GatewayConfig) *Gateway {
	return &Gateway{
		// Per-request timeouts come from the request context, so the
		// shared client carries none of its own.
		client:         &http.Client{},
		commandTimeout: secondsOr(cfg.CommandTimeout, defaultCommandTimeout),
		eraseTimeout:   secondsOr(cfg.EraseTimeout, defaultEraseTimeout),
		uploadTimeout:  secondsOr(cfg.UploadTimeout, defaultUploadTimeout),
		probeTimeout:   secondsOr(cfg.ProbeTimeout, defaultProbeTimeout),
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
}

func secondsOr(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// Restart asks the device to reboot. The device usually drops the
// connection while answering, so a reset here resolves AssumedSuccess.
func (g *Gateway) Restart(ctx context.Context, addr string) (Result, error) {
	if err := checkAddr(addr); err != nil {
		return Result{}, err
	}
	return g.command(ctx, http.MethodPost, addr, "/api/restart", g.commandTimeout, nil, ""), nil
}

// EraseOld asks the device to erase its previous firmware slot.
func (g *Gateway) EraseOld(ctx context.Context, addr string) (Result, error) {
	if err := checkAddr(addr); err != nil {
		return Result{}, err
	}
	return g.command(ctx, http.MethodPost, addr, "/api/firmware/erase-old", g.eraseTimeout, nil, ""), nil
}

// FirmwareInfo queries the device's firmware partition details.
func (g *Gateway) FirmwareInfo(ctx context.Context, addr string) (json.RawMessage, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	return g.query(ctx, addr, "/api/firmware/info", g.commandTimeout)
}

// DeviceInfo queries the device's self-description. Discovery uses this
// as its reachability probe.
func (g *Gateway) DeviceInfo(ctx context.Context, addr string) (json.RawMessage, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	return g.query(ctx, addr, "/api/device-info", g.probeTimeout)
}

// PushTally sends the device its current tally state, along with the
// display name and source assignment so the device can persist them.
func (g *Gateway) PushTally(ctx context.Context, addr string, state device.TallyState, name, source string) (Result, error) {
	if err := checkAddr(addr); err != nil {
		return Result{}, err
	}

	payload := map[string]any{"tallyStatus": firmwareStatus(state)}
	if name != "" {
		payload["deviceName"] = name
	}
	if source != "" {
		payload["assignedSource"] = source
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encoding tally payload: %w", err)
	}

	return g.command(ctx, http.MethodPost, addr, "/api/tally", g.commandTimeout,
		bytes.NewReader(body), "application/json"), nil
}

// UploadFirmware streams a firmware image to the device as a multipart
// upload. The file at firmwarePath is deleted on every exit path; it is
// a staged temporary copy and must not outlive the attempt.
//
// A connection reset during or after the transfer resolves
// AssumedSuccess: the OTA handler reboots into the new image without
// always finishing the HTTP exchange.
func (g *Gateway) UploadFirmware(ctx context.Context, addr, firmwarePath string) (Result, error) {
	defer os.Remove(firmwarePath)

	if err := checkAddr(addr); err != nil {
		return Result{}, err
	}

	f, err := os.Open(firmwarePath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrFirmwareFile, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("firmware", filepath.Base(firmwarePath))
	if err != nil {
		return Result{}, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrFirmwareFile, err)
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("building upload form: %w", err)
	}

	return g.command(ctx, http.MethodPost, addr, "/update", g.uploadTimeout,
		&buf, w.FormDataContentType()), nil
}

// checkAddr rejects commands for devices without a usable address.
func checkAddr(addr string) error {
	if addr == "" || addr == device.UnknownAddress {
		return ErrNoAddress
	}
	return nil
}

// command runs one request against the device and classifies the outcome.
func (g *Gateway) command(ctx context.Context, method, addr, path string, timeout time.Duration, body io.Reader, contentType string) Result {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, method, deviceURL(addr, path), body)
	if err != nil {
		return Result{Outcome: OutcomeFailure, Message: fmt.Sprintf("building request: %v", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if isConnectionReset(err) {
			return g.assumeAfterReset(ctx, addr, path)
		}
		return Result{Outcome: OutcomeFailure, Message: fmt.Sprintf("device request failed: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		if isConnectionReset(err) {
			return g.assumeAfterReset(ctx, addr, path)
		}
		return Result{Outcome: OutcomeFailure, Message: fmt.Sprintf("reading device response: %v", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Outcome: OutcomeSuccess, Message: strings.TrimSpace(string(data))}
	}
	return Result{
		Outcome: OutcomeFailure,
		Message: fmt.Sprintf("device returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
	}
}

// query runs a GET and returns the raw JSON body on success.
func (g *Gateway) query(ctx context.Context, addr, path string, timeout time.Duration) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, deviceURL(addr, path), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("reading device response: %w", err)
	}
	return json.RawMessage(data), nil
}

// assumeAfterReset finalizes a command whose connection was reset by the
// device. One short probe distinguishes "already back up" from "still
// flashing"; both resolve AssumedSuccess, only the message differs.
func (g *Gateway) assumeAfterReset(ctx context.Context, addr, path string) Result {
	g.logger.Info("connection reset during device command, probing",
		"addr", addr, "path", path)

	if _, err := g.DeviceInfo(ctx, addr); err == nil {
		return Result{
			Outcome: OutcomeAssumedSuccess,
			Message: "connection reset by device; device is responding again, assuming the command was applied",
		}
	}
	return Result{
		Outcome: OutcomeAssumedSuccess,
		Message: "connection reset by device; no response to follow-up probe, assuming reboot or flash in progress",
	}
}

func deviceURL(addr, path string) string {
	return "http://" + addr + path
}

// firmwareStatus maps a canonical tally state to the string the device
// firmware matches on its display path.
func firmwareStatus(state device.TallyState) string {
	switch state {
	case device.TallyLive:
		return "Live"
	case device.TallyPreview:
		return "Preview"
	case device.TallyTransition:
		return "Transition"
	default:
		return "Idle"
	}
}

// isConnectionReset reports whether err is in the connection-reset class:
// the peer tore the socket down mid-exchange. Timeouts are deliberately
// excluded; a quiet timeout carries no evidence the device acted.
func isConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe")
}
