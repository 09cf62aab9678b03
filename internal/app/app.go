// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles the embedding provider, the vector
// index backend, and the memory components on top of them. Setup builds
// everything from a Config; Close releases it in reverse order.
package app

import (
	"log/slog"

	"github.com/exocortex/exocortex/internal/config"
	"github.com/exocortex/exocortex/internal/embedder"
	"github.com/exocortex/exocortex/internal/memory"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Embedder embedder.Embedder
	Index    memory.Index

	// Memory components
	Ingester      *memory.Ingester
	Identity      *memory.IdentityLoader
	Conversations *memory.ConversationLogger
	Assembler     *memory.Assembler
	Bootstrapper  *memory.Bootstrapper

	// Cleanup functions, run in reverse registration order.
	closers []func()
}

// Close releases all resources held by the container.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
