package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrdirno/nested-resonance-memory-archive-sub014/internal/engine"
)

// NewSink returns the sink for a configured backend. "" and "none" mean no
// sink (nil, nil).
func NewSink(backend, path string) (engine.PersistenceSink, error) {
	switch backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemorySink(), nil
	case "sqlite":
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		db, err := Open(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported persistence backend: %s", backend)
	}
}

// CloseIfSupported closes sinks that hold resources.
func CloseIfSupported(sink engine.PersistenceSink) error {
	closer, ok := sink.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
