package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halnode/rtl-bridge/internal/infrastructure/config"
	"github.com/halnode/rtl-bridge/internal/ingest"
)

// Sink receives decoded events from the listener.
// Satisfied by *ingest.Queue.
type Sink interface {
	TryEnqueue(ev ingest.RawEvent) bool
	Full() bool
}

// Logger defines the logging interface used by the listener.
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

// Listener accepts newline-delimited JSON from network sensors.
//
// Each connection is handled on its own goroutine: a sensor writes one
// JSON object per line and the listener enqueues each as a raw TCP
// event. Connections idle past the read timeout are closed; sensors
// are expected to reconnect per report or hold the line open, either
// works.
type Listener struct {
	cfg    config.TCPConfig
	sink   Sink
	logger Logger

	ln        net.Listener
	wg        sync.WaitGroup
	malformed atomic.Uint64
}

// NewListener creates a TCP listener feeding the given sink.
func NewListener(cfg config.TCPConfig, sink Sink) *Listener {
	return &Listener{
		cfg:    cfg,
		sink:   sink,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	l.logger = logger
}

// Start binds the listening socket and begins accepting connections.
// Cancelling the context closes the socket and drains the handlers.
func (l *Listener) Start(ctx context.Context) error {
	if l.ln != nil {
		return errors.New("tcp listener already started")
	}

	addr := fmt.Sprintf("%s:%d", l.cfg.Host, l.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding tcp listener on %s: %w", addr, err)
	}
	l.ln = ln

	l.logger.Info("tcp listener started", "addr", ln.Addr().String())

	l.wg.Add(1)
	go l.acceptLoop(ctx)

	// Close the socket on shutdown so Accept unblocks.
	go func() {
		<-ctx.Done()
		ln.Close() //nolint:errcheck // Shutdown path
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Wait blocks until the accept loop and all connection handlers finish.
func (l *Listener) Wait() {
	l.wg.Wait()
}

// Malformed returns the number of lines rejected as invalid JSON.
func (l *Listener) Malformed() uint64 {
	return l.malformed.Load()
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("tcp listener stopped")
				return
			}
			l.logger.Warn("accept failed", "error", err)
			continue
		}

		// Backpressure: with nowhere to put events, turning the sensor
		// away now beats reading lines only to shed them. Sensors
		// reconnect on their next report.
		if l.sink.Full() {
			l.logger.Warn("event queue full, rejecting connection",
				"remote", conn.RemoteAddr().String())
			conn.Close() //nolint:errcheck // Rejection path
			continue
		}

		l.wg.Add(1)
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close() //nolint:errcheck // Read side already consumed

	remote := conn.RemoteAddr().String()
	l.logger.Debug("sensor connected", "remote", remote)

	// Close the connection when shutting down so the scanner unblocks.
	stop := context.AfterFunc(ctx, func() {
		conn.Close() //nolint:errcheck // Shutdown path
	})
	defer stop()

	readTimeout := time.Duration(l.cfg.ReadTimeout) * time.Second

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), l.cfg.MaxLineBytes)

	for {
		if readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				break
			}
		}
		if !scanner.Scan() {
			break
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal(line, &fields); err != nil {
			l.malformed.Add(1)
			l.logger.Warn("invalid json line",
				"remote", remote,
				"error", err)
			continue
		}

		ev := ingest.RawEvent{
			Channel:    ingest.ChannelTCP,
			Fields:     fields,
			ReceivedAt: time.Now(),
		}
		if !l.sink.TryEnqueue(ev) {
			l.logger.Warn("event queue full, shedding tcp event", "remote", remote)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		l.logger.Debug("connection closed",
			"remote", remote,
			"error", err)
	}
}
