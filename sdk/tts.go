package pbxlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pbxlink-go/pbxlink/pkg/core"
)

const (
	defaultTTSBaseURL = "http://localhost:8000"
	defaultTTSVoice   = "alloy"
	defaultTTSFormat  = "wav"

	// DefaultAudioTTL is how long synthesized files stay on disk before
	// scheduled cleanup removes them. Asterisk needs the file to exist for
	// the whole playback, so this is generous.
	DefaultAudioTTL = 5 * time.Minute
)

// SynthesisRequest describes one text-to-speech synthesis.
type SynthesisRequest struct {
	Text   string
	Voice  string
	Format string
}

// SynthesisResult points at the synthesized audio on local disk.
type SynthesisResult struct {
	AudioPath string
	Size      int64
}

// SpeechServiceOption configures a SpeechService.
type SpeechServiceOption func(*SpeechService)

// WithSpeechBaseURL points the service at an OpenAI-compatible speech
// endpoint.
func WithSpeechBaseURL(baseURL string) SpeechServiceOption {
	return func(s *SpeechService) {
		if v := strings.TrimSpace(baseURL); v != "" {
			s.baseURL = v
		}
	}
}

// WithSpeechHTTPClient overrides the HTTP client used for synthesis calls.
func WithSpeechHTTPClient(client *http.Client) SpeechServiceOption {
	return func(s *SpeechService) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithSpeechLogger sets the service's logger.
func WithSpeechLogger(l *slog.Logger) SpeechServiceOption {
	return func(s *SpeechService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSpeechAudioDir sets the directory synthesized files are written to.
// Default is the OS temp directory. The directory must be readable by the
// Asterisk process when files are played by path.
func WithSpeechAudioDir(dir string) SpeechServiceOption {
	return func(s *SpeechService) {
		if dir != "" {
			s.audioDir = dir
		}
	}
}

// SpeechService synthesizes speech through a local OpenAI-compatible TTS
// server and manages the lifetime of the resulting audio files. It exists for
// deployments that play files into calls directly instead of using the
// bridge's server-side speak endpoint.
type SpeechService struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	audioDir   string

	mu       sync.Mutex
	cleanups map[string]*time.Timer
}

// NewSpeechService creates a speech service with the default local endpoint.
func NewSpeechService(opts ...SpeechServiceOption) *SpeechService {
	s := &SpeechService{
		baseURL:  defaultTTSBaseURL,
		logger:   slog.Default(),
		audioDir: os.TempDir(),
		cleanups: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		s.httpClient = newDefaultHTTPClient()
	}
	return s
}

// Synthesize converts text to speech and writes the audio to a uniquely named
// file in the service's audio directory. The caller owns the file; use
// CleanupAudioFile or ScheduleCleanup to remove it.
func (s *SpeechService) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, core.NewInvalidRequestError("text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		voice = defaultTTSVoice
	}
	format := req.Format
	if format == "" {
		format = defaultTTSFormat
	}

	payload, err := json.Marshal(map[string]string{
		"input":           req.Text,
		"voice":           voice,
		"response_format": format,
	})
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	endpoint := strings.TrimRight(s.baseURL, "/") + "/v1/audio/speech"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.FromStatus(resp.StatusCode,
			fmt.Sprintf("speech synthesis failed: %s", strings.TrimSpace(string(body))))
	}

	path := filepath.Join(s.audioDir, fmt.Sprintf("tts-%s.%s", uuid.NewString(), format))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	size, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write audio file: %w", err)
	}

	s.logger.Debug("speech synthesized", "path", path, "bytes", size, "voice", voice)
	return &SynthesisResult{AudioPath: path, Size: size}, nil
}

// CleanupAudioFile removes a synthesized file immediately and cancels any
// scheduled cleanup for it. Removing an already-gone file is not an error.
func (s *SpeechService) CleanupAudioFile(path string) error {
	s.mu.Lock()
	if timer, ok := s.cleanups[path]; ok {
		timer.Stop()
		delete(s.cleanups, path)
	}
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove audio file: %w", err)
	}
	return nil
}

// ScheduleCleanup arms a deferred removal of the file. Scheduling again for
// the same path resets the timer; delay <= 0 uses DefaultAudioTTL.
func (s *SpeechService) ScheduleCleanup(path string, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultAudioTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.cleanups[path]; ok {
		timer.Stop()
	}
	s.cleanups[path] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.cleanups, path)
		s.mu.Unlock()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("scheduled audio cleanup failed", "path", path, "error", err)
		}
	})
}

// Close cancels all pending cleanups without removing the files.
func (s *SpeechService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, timer := range s.cleanups {
		timer.Stop()
		delete(s.cleanups, path)
	}
}
