package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal/db"
	"github.com/fedragon/feedme/internal/metadata"
	"github.com/fedragon/feedme/internal/metrics"
)

var mx = metrics.NoMetrics()

func newStore() *metadata.Store {
	return metadata.NewStore(db.NewMemory(), zap.NewNop(), mx)
}

// writeMedia creates name below dir with the given content and modification
// time.
func writeMedia(t *testing.T, dir, name, content string, modTime int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := time.Unix(modTime, 0)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}
	return path
}

type failingProber struct {
	err error
}

func (p failingProber) Duration(context.Context, string) (uint64, error) {
	return 0, p.err
}
