package nats

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer is an in-process NATS server with JetStream enabled.
type EmbeddedServer struct {
	server  *server.Server
	tempDir string
}

// EmbeddedOptions configures StartEmbeddedServer.
type EmbeddedOptions struct {
	// Port is the client port; -1 picks a random free port.
	Port int
	// StoreDir holds JetStream data; empty uses a temporary directory
	// removed on Shutdown.
	StoreDir string
}

// StartEmbeddedServer starts a server and waits until it accepts connections.
func StartEmbeddedServer(opts EmbeddedOptions) (*EmbeddedServer, error) {
	if opts.Port == 0 {
		opts.Port = -1
	}

	var tempDir string
	if opts.StoreDir == "" {
		dir, err := os.MkdirTemp("", "purchasing-nats-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
		tempDir = dir
		opts.StoreDir = dir
	}

	s, err := server.NewServer(&server.Options{
		ServerName: "purchasing-embedded",
		Host:       "127.0.0.1",
		Port:       opts.Port,
		JetStream:  true,
		StoreDir:   opts.StoreDir,
		NoSigs:     true,
	})
	if err != nil {
		removeDir(tempDir)
		return nil, fmt.Errorf("failed to create embedded server: %w", err)
	}

	go s.Start()

	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		removeDir(tempDir)
		return nil, fmt.Errorf("embedded server not ready")
	}

	return &EmbeddedServer{server: s, tempDir: tempDir}, nil
}

// URL returns the connection URL for the embedded server.
func (e *EmbeddedServer) URL() string {
	return e.server.ClientURL()
}

// Shutdown stops the embedded server.
func (e *EmbeddedServer) Shutdown() {
	e.server.Shutdown()
	e.server.WaitForShutdown()
	removeDir(e.tempDir)
}

func removeDir(dir string) {
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}

// NewEmbeddedEventBus starts a throwaway server with an in-memory stream.
func NewEmbeddedEventBus() (*EventBus, *EmbeddedServer, error) {
	srv, err := StartEmbeddedServer(EmbeddedOptions{})
	if err != nil {
		return nil, nil, err
	}

	config := DefaultConfig()
	config.URL = srv.URL()
	config.MemoryStorage = true
	config.MaxAge = time.Hour
	config.MaxBytes = 10 * 1024 * 1024

	bus, err := NewEventBus(config)
	if err != nil {
		srv.Shutdown()
		return nil, nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	return bus, srv, nil
}
