package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vocabcue/internal/logging"
	"vocabcue/internal/models"
)

const (
	ttsRequestTimeout = 10 * time.Second
	defaultEndpoint   = "https://translate.google.com/translate_tts"
	// URLPrefix is where the static handler serves the audio directory
	URLPrefix = "/static/audio/"
)

// TTSService generates and locates spoken word audio
type TTSService struct {
	audioDir string
	endpoint string
	language string
	client   *http.Client
	logger   *zap.Logger
}

// NewTTSService creates a TTS service writing into audioDir
func NewTTSService(audioDir, endpoint, language string, logger *zap.Logger) *TTSService {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if language == "" {
		language = "en"
	}
	return &TTSService{
		audioDir: audioDir,
		endpoint: endpoint,
		language: language,
		client:   &http.Client{Timeout: ttsRequestTimeout},
		logger:   logging.OrNop(logger),
	}
}

// Filename returns the file name audio for word is stored under
func Filename(word string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(word)) {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return fmt.Sprintf("word_%s.mp3", b.String())
}

// Existing returns the URL of already generated audio for word
func (s *TTSService) Existing(word string) (string, bool) {
	name := Filename(word)
	if _, err := os.Stat(filepath.Join(s.audioDir, name)); err != nil {
		return "", false
	}
	return path.Join(URLPrefix, name), true
}

// GenerateAudioFile converts text to speech and saves it as MP3.
// Returns the filename (not full path); existing files are reused.
func (s *TTSService) GenerateAudioFile(ctx context.Context, text string) (string, error) {
	filename := Filename(text)
	target := filepath.Join(s.audioDir, filename)

	if _, err := os.Stat(target); err == nil {
		return filename, nil
	}

	if err := s.fetch(ctx, text, target); err != nil {
		return "", fmt.Errorf("failed to generate audio: %w", err)
	}
	return filename, nil
}

func (s *TTSService) fetch(ctx context.Context, text, outputPath string) error {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", s.language)
	params.Set("client", "tw-ob")
	params.Set("textlen", fmt.Sprintf("%d", len(text)))

	ctx, cancel := context.WithTimeout(ctx, ttsRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// required by Google
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// write beside the target and rename so a half-written file is never served
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".tts-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return os.Rename(tmp.Name(), outputPath)
}

// BatchResult summarizes a batch generation run
type BatchResult struct {
	Generated map[string]string // word -> URL
	Skipped   int
	Failed    map[string]error
}

// BatchGenerateAudio generates audio for every record without an audio_path,
// running at most concurrency requests at once. Per-word failures are collected.
func (s *TTSService) BatchGenerateAudio(ctx context.Context, records []models.WordRecord, concurrency int) (*BatchResult, error) {
	if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	result := &BatchResult{
		Generated: make(map[string]string),
		Failed:    make(map[string]error),
	}
	var mu sync.Mutex
	seen := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, rec := range records {
		word := strings.TrimSpace(rec.Word)
		key := strings.ToLower(word)
		if word == "" || rec.AudioPath != "" || seen[key] {
			result.Skipped++
			continue
		}
		seen[key] = true

		g.Go(func() error {
			filename, err := s.GenerateAudioFile(gctx, word)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("Audio generation failed", zap.String("word", word), zap.Error(err))
				result.Failed[word] = err
				return nil
			}
			result.Generated[word] = path.Join(URLPrefix, filename)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	s.logger.Info("Audio generation finished",
		zap.Int("generated", len(result.Generated)),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failed)))
	return result, ctx.Err()
}
