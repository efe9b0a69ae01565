package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"vocabcue/internal/experiment"
	"vocabcue/internal/logging"
	"vocabcue/internal/models"
)

const fetchTimeout = 15 * time.Second

// Library loads the word CSV once and serves per-group round lists
type Library struct {
	source string
	client *http.Client
	logger *zap.Logger

	group singleflight.Group

	mu         sync.RWMutex
	records    []models.WordRecord
	loaded     bool
	partitions map[string]map[int][]models.WordItem
}

// NewLibrary creates a library reading from an http(s) URL or a local path
func NewLibrary(source string, client *http.Client, logger *zap.Logger) *Library {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Library{
		source:     source,
		client:     client,
		logger:     logging.OrNop(logger),
		partitions: make(map[string]map[int][]models.WordItem),
	}
}

// Records returns every parsed row, loading the CSV on first use.
// Concurrent first callers share one fetch.
func (l *Library) Records(ctx context.Context) ([]models.WordRecord, error) {
	l.mu.RLock()
	if l.loaded {
		records := l.records
		l.mu.RUnlock()
		return records, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("records", func() (interface{}, error) {
		l.mu.RLock()
		if l.loaded {
			records := l.records
			l.mu.RUnlock()
			return records, nil
		}
		l.mu.RUnlock()
		return l.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.WordRecord), nil
}

// Rounds returns the round lists for group
func (l *Library) Rounds(ctx context.Context, group string) (map[int][]models.WordItem, error) {
	key := strings.ToLower(group)

	l.mu.RLock()
	rounds, ok := l.partitions[key]
	l.mu.RUnlock()
	if ok {
		return rounds, nil
	}

	records, err := l.Records(ctx)
	if err != nil {
		return nil, err
	}
	rounds = Partition(records, key, l.logger)

	l.mu.Lock()
	l.partitions[key] = rounds
	l.mu.Unlock()

	for round := 1; round <= experiment.Rounds; round++ {
		l.logger.Debug("Partitioned round", zap.String("group", key), zap.Int("round", round), zap.Int("words", len(rounds[round])))
	}
	return rounds, nil
}

// Reload drops cached content so the next call fetches again
func (l *Library) Reload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.loaded = false
	l.partitions = make(map[string]map[int][]models.WordItem)
}

func (l *Library) load(ctx context.Context) ([]models.WordRecord, error) {
	body, err := l.open(ctx)
	if err != nil {
		return nil, experiment.Wrap(experiment.ErrContentLoad, "open "+l.source, err)
	}
	defer body.Close()

	result, err := Parse(body)
	if err != nil {
		return nil, experiment.Wrap(experiment.ErrContentLoad, "parse "+l.source, err)
	}
	if result.Dropped > 0 {
		l.logger.Warn("Dropped malformed content rows", zap.String("source", l.source), zap.Int("dropped", result.Dropped))
	}
	l.logger.Info("Content loaded",
		zap.String("source", l.source),
		zap.Int("records", len(result.Records)),
		zap.Bool("minimal", result.Minimal))

	l.mu.Lock()
	l.records = result.Records
	l.loaded = true
	l.mu.Unlock()
	return result.Records, nil
}

func (l *Library) open(ctx context.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(l.source, "http://") && !strings.HasPrefix(l.source, "https://") {
		return os.Open(l.source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("content fetch returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
