package telephony

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ESLGateway drives a FreeSWITCH switch over its event socket (mod_event_socket,
// inbound mode). One control connection is shared and serialized; commands are
// cheap request/reply exchanges.
//
// Failure model: any socket or protocol error drops the connection; the next
// command redials. Callers see the error mapped to their operation's failure
// branch (origination failure, gateway unavailable, stale-status fallback).
type ESLGateway struct {
	addr     string
	password string
	gateway  string // sofia gateway name used in dial strings
	timeout  time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

type ESLConfig struct {
	Host     string
	Port     int
	Password string
	// Gateway is the sofia gateway name for the SIP trunk (e.g. "telnyx").
	Gateway string
	// CommandTimeout bounds each request/reply exchange. Default 5s.
	CommandTimeout time.Duration
}

func NewESLGateway(cfg ESLConfig, log *slog.Logger) (*ESLGateway, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("telephony: switch host and port are required")
	}
	if cfg.Password == "" {
		return nil, errors.New("telephony: switch password is required")
	}
	if cfg.Gateway == "" {
		return nil, errors.New("telephony: sofia gateway name is required")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ESLGateway{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		password: cfg.Password,
		gateway:  cfg.Gateway,
		timeout:  cfg.CommandTimeout,
		log:      log,
	}, nil
}

func (g *ESLGateway) Name() string { return "freeswitch-esl" }

func (g *ESLGateway) HealthCheck(ctx context.Context) error {
	body, err := g.api(ctx, "status")
	if err != nil {
		return err
	}
	if !strings.Contains(body, "UP") {
		return fmt.Errorf("telephony: switch not up: %q", firstLine(body))
	}
	return nil
}

func (g *ESLGateway) Originate(ctx context.Context, destination, callerID string) (OriginateResult, error) {
	handle := uuid.NewString()

	// The switch expects E.164; prepend + when the caller sent a bare core.
	if !strings.HasPrefix(destination, "+") {
		destination = "+" + destination
	}

	vars := []string{"origination_uuid=" + handle}
	if callerID != "" {
		vars = append(vars, "origination_caller_id_number="+callerID)
	}
	cmd := fmt.Sprintf("originate {%s}sofia/gateway/%s/%s &park()",
		strings.Join(vars, ","), g.gateway, destination)

	body, err := g.api(ctx, cmd)
	if err != nil {
		return OriginateResult{}, err
	}
	if strings.HasPrefix(body, "-ERR") {
		return OriginateResult{OK: false, Reason: strings.TrimSpace(strings.TrimPrefix(body, "-ERR"))}, nil
	}
	return OriginateResult{OK: true, Handle: handle}, nil
}

func (g *ESLGateway) Hangup(ctx context.Context, handle string) (HangupResult, error) {
	body, err := g.api(ctx, "uuid_kill "+handle)
	if err != nil {
		return HangupResult{}, err
	}
	if strings.HasPrefix(body, "-ERR") {
		reason := strings.TrimSpace(strings.TrimPrefix(body, "-ERR"))
		// Killing a channel that already went away is a success for our caller:
		// the call is down either way.
		if strings.Contains(reason, "No such channel") {
			return HangupResult{OK: true}, nil
		}
		return HangupResult{OK: false, Reason: reason}, nil
	}
	return HangupResult{OK: true}, nil
}

func (g *ESLGateway) GetStatus(ctx context.Context, handle string) (StatusResult, error) {
	body, err := g.api(ctx, "uuid_dump "+handle)
	if err != nil {
		return StatusResult{}, err
	}
	if strings.HasPrefix(body, "-ERR") {
		// Channel gone: the switch no longer tracks it. Report completed and
		// let reconciliation decide whether that is a forward transition.
		return StatusResult{Status: StatusCompleted}, nil
	}

	dump := parseBodyHeaders(body)
	res := StatusResult{Status: StatusUnknown}

	switch dump["Answer-State"] {
	case "ringing", "early":
		res.Status = StatusRinging
	case "answered":
		res.Status = StatusAnswered
	case "hangup":
		res.Status = StatusCompleted
	}

	if d, err := strconv.Atoi(dump["variable_duration"]); err == nil {
		res.DurationSeconds = d
	}
	// MOS is reported scaled ("4.40"); absent until media stats exist.
	if mos, err := strconv.ParseFloat(dump["variable_rtp_audio_in_mos"], 64); err == nil {
		res.QualityScore = &mos
	}
	return res, nil
}

func (g *ESLGateway) Hold(ctx context.Context, handle string, hold bool) error {
	cmd := "uuid_hold " + handle
	if !hold {
		cmd = "uuid_hold off " + handle
	}
	return g.simpleAPI(ctx, cmd)
}

func (g *ESLGateway) Mute(ctx context.Context, handle string, mute bool) error {
	flag := "1"
	if !mute {
		flag = "0"
	}
	return g.simpleAPI(ctx, fmt.Sprintf("uuid_audio %s start write mute %s", handle, flag))
}

// Close drops the control connection.
func (g *ESLGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropLocked()
}

/* ===================== SOCKET PLUMBING ===================== */

func (g *ESLGateway) simpleAPI(ctx context.Context, cmd string) error {
	body, err := g.api(ctx, cmd)
	if err != nil {
		return err
	}
	if strings.HasPrefix(body, "-ERR") {
		return fmt.Errorf("telephony: %s", strings.TrimSpace(strings.TrimPrefix(body, "-ERR")))
	}
	return nil
}

// api sends one "api <cmd>" request and returns the response body.
func (g *ESLGateway) api(ctx context.Context, cmd string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ensureLocked(ctx); err != nil {
		return "", err
	}

	deadline := time.Now().Add(g.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = g.conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(g.conn, "api %s\n\n", cmd); err != nil {
		_ = g.dropLocked()
		return "", fmt.Errorf("telephony: send: %w", err)
	}

	// Skip interleaved frames until the api response arrives.
	for {
		msg, err := readESLMessage(g.r)
		if err != nil {
			_ = g.dropLocked()
			return "", fmt.Errorf("telephony: read: %w", err)
		}
		switch msg.contentType() {
		case "api/response":
			return msg.body, nil
		case "text/disconnect-notice":
			_ = g.dropLocked()
			return "", errors.New("telephony: switch closed the connection")
		}
	}
}

// ensureLocked dials and authenticates if no live connection exists.
func (g *ESLGateway) ensureLocked(ctx context.Context) error {
	if g.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: g.timeout}
	conn, err := d.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return fmt.Errorf("telephony: dial %s: %w", g.addr, err)
	}
	r := bufio.NewReader(conn)
	_ = conn.SetDeadline(time.Now().Add(g.timeout))

	msg, err := readESLMessage(r)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("telephony: greeting: %w", err)
	}
	if msg.contentType() != "auth/request" {
		_ = conn.Close()
		return fmt.Errorf("telephony: unexpected greeting %q", msg.contentType())
	}

	if _, err := fmt.Fprintf(conn, "auth %s\n\n", g.password); err != nil {
		_ = conn.Close()
		return fmt.Errorf("telephony: auth send: %w", err)
	}
	reply, err := readESLMessage(r)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("telephony: auth reply: %w", err)
	}
	if !strings.HasPrefix(reply.replyText(), "+OK") {
		_ = conn.Close()
		return fmt.Errorf("telephony: auth rejected: %q", reply.replyText())
	}

	g.conn = conn
	g.r = r
	g.log.Info("switch connected", "addr", g.addr)
	return nil
}

func (g *ESLGateway) dropLocked() error {
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	g.r = nil
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
