package memory

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
)

// BootstrapConfig names the seed inputs consumed on first startup.
type BootstrapConfig struct {
	// FactsPath is the identity facts JSON file. A missing file is
	// logged and skipped, not fatal.
	FactsPath string
	// ProjectSources are files or directories ingested into the project
	// context collection. When empty, README.md in the working
	// directory is used if present.
	ProjectSources []string
	// ProjectExtensions whitelists suffixes for directory sources.
	ProjectExtensions []string
}

// BootstrapResult reports what one initialization run seeded.
type BootstrapResult struct {
	IdentityFacts int
	ProjectFiles  int
	ProjectChunks int
	// AlreadyDone is true when a previous call in this process already
	// completed the bootstrap.
	AlreadyDone bool
}

// Bootstrapper seeds empty collections once per process. It is invoked
// explicitly at service startup rather than implicitly on first memory
// access, which keeps startup ordering deterministic and testable.
type Bootstrapper struct {
	store    Index
	loader   *IdentityLoader
	ingester *Ingester
	cfg      BootstrapConfig
	logger   *slog.Logger

	mu   sync.Mutex
	done bool
	last BootstrapResult
}

// NewBootstrapper creates a bootstrapper over the store.
func NewBootstrapper(store Index, ingester *Ingester, loader *IdentityLoader, cfg BootstrapConfig, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		store:    store,
		loader:   loader,
		ingester: ingester,
		cfg:      cfg,
		logger:   logger,
	}
}

// EnsureInitialized seeds the identity and project context collections if
// they are empty. Concurrent callers serialize on an internal mutex and
// at most one seeding run happens per process; later calls are no-ops.
// A failed run leaves the gate open so the next call retries.
func (b *Bootstrapper) EnsureInitialized(ctx context.Context) (BootstrapResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		result := b.last
		result.AlreadyDone = true
		return result, nil
	}

	var result BootstrapResult

	populated, err := b.loader.IsPopulated(ctx)
	if err != nil {
		return result, err
	}
	if !populated && b.cfg.FactsPath != "" {
		n, err := b.loader.PopulateFromFile(ctx, b.cfg.FactsPath, false)
		switch {
		case errors.Is(err, ErrNotFound):
			b.logger.Warn("identity facts file missing, skipping identity seed",
				"path", b.cfg.FactsPath)
		case err != nil:
			return result, err
		default:
			result.IdentityFacts = n
		}
	}

	projectCount, err := b.store.Count(ctx, CollectionProjectContext)
	if err != nil {
		return result, err
	}
	if projectCount == 0 {
		files, chunks, err := b.seedProjectContext(ctx)
		if err != nil {
			return result, err
		}
		result.ProjectFiles = files
		result.ProjectChunks = chunks
	}

	b.done = true
	b.last = result
	b.logger.Info("memory bootstrap complete",
		"identity_facts", result.IdentityFacts,
		"project_files", result.ProjectFiles,
		"project_chunks", result.ProjectChunks)
	return result, nil
}

func (b *Bootstrapper) seedProjectContext(ctx context.Context) (files, chunks int, err error) {
	sources := b.cfg.ProjectSources
	if len(sources) == 0 {
		if _, statErr := os.Stat("README.md"); statErr == nil {
			sources = []string{"README.md"}
		}
	}

	for _, src := range sources {
		info, statErr := os.Stat(src)
		if statErr != nil {
			b.logger.Warn("project source missing, skipping", "path", src)
			continue
		}
		if info.IsDir() {
			report, derr := b.ingester.IngestDirectory(ctx, CollectionProjectContext, src, DirOptions{
				Extensions: b.cfg.ProjectExtensions,
				Recursive:  true,
			})
			if derr != nil {
				return files, chunks, derr
			}
			files += report.FilesIngested
			chunks += report.ChunksAdded
			continue
		}
		n, ferr := b.ingester.IngestFile(ctx, CollectionProjectContext, src, IngestOptions{})
		if ferr != nil {
			b.logger.Warn("project source ingestion failed, skipping",
				"path", src, "error", ferr)
			continue
		}
		files++
		chunks += n
	}
	return files, chunks, nil
}
