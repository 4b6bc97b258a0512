package main

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/miradorstack/mirador-remedy/internal/api"
	"github.com/miradorstack/mirador-remedy/internal/config"
)

const requestTimeout = 10 * time.Second

// dial connects to a running engine. The address comes from --addr, falling
// back to server.address in the loaded configuration.
func dial(opts *rootOptions) (*api.RemediationClient, func(), error) {
	address := opts.address
	if address == "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return nil, nil, err
		}
		address = clientAddress(cfg.Server.Address)
	}
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	return api.NewRemediationClient(conn), func() { _ = conn.Close() }, nil
}

// clientAddress turns a listen address such as ":50061" into a dialable one.
func clientAddress(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return "127.0.0.1" + listen
	}
	return listen
}

func requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, requestTimeout)
}
