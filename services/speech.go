package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// AudioURLPrefix is the route the audio directory is served under.
const AudioURLPrefix = "/audio/"

// DefaultPlaceholderAudioURL is played when synthesis is unavailable or
// fails, so voice responses always carry a playable URL.
const DefaultPlaceholderAudioURL = "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3"

type speechSynthesizer interface {
	TextToSpeech(ctx context.Context, text, voiceID string) (io.ReadCloser, error)
}

// SpeechService turns assistant text into MP3 files under the audio
// directory and hands back relative URLs. Files are keyed by a hash of
// (text, voice), so repeated phrases reuse the same file and nothing is
// ever synthesized twice. Generated files stay on disk; there is no
// garbage collection.
type SpeechService struct {
	synth          speechSynthesizer
	audioDir       string
	voiceID        string
	placeholderURL string
	mutex          sync.RWMutex
}

// NewSpeechService creates the audio directory if needed. synth may be nil
// when no synthesis key is configured; every request then resolves to the
// placeholder URL.
func NewSpeechService(synth *ElevenLabsService, audioDir, voiceID, placeholderURL string) *SpeechService {
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		slog.Error("Failed to create audio directory", "dir", audioDir, "error", err)
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if placeholderURL == "" {
		placeholderURL = DefaultPlaceholderAudioURL
	}

	s := &SpeechService{
		audioDir:       audioDir,
		voiceID:        voiceID,
		placeholderURL: placeholderURL,
	}
	// A typed nil inside the interface would dodge the nil checks below.
	if synth != nil {
		s.synth = synth
	}
	return s
}

// Dir returns the directory audio files are written to.
func (s *SpeechService) Dir() string {
	return s.audioDir
}

// PlaceholderURL returns the fallback audio URL.
func (s *SpeechService) PlaceholderURL() string {
	return s.placeholderURL
}

// Synthesize converts text to speech and returns the relative URL of the
// stored MP3. On any failure (no synthesizer, API error, write error) it
// returns the placeholder URL instead; callers always get something
// playable.
func (s *SpeechService) Synthesize(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return s.placeholderURL
	}
	if s.synth == nil {
		return s.placeholderURL
	}

	key := s.fileKey(text)
	if s.exists(key) {
		return AudioURLPrefix + key + ".mp3"
	}

	audioReader, err := s.synth.TextToSpeech(ctx, text, s.voiceID)
	if err != nil {
		slog.Warn("Speech synthesis failed, using placeholder audio", "error", err)
		return s.placeholderURL
	}
	defer audioReader.Close()

	audioData, err := io.ReadAll(audioReader)
	if err != nil {
		slog.Warn("Failed to read synthesized audio, using placeholder audio", "error", err)
		return s.placeholderURL
	}

	if err := s.store(key, audioData); err != nil {
		slog.Warn("Failed to store synthesized audio, using placeholder audio", "error", err)
		return s.placeholderURL
	}

	slog.Info("Synthesized audio stored", "file", key+".mp3", "size", len(audioData))
	return AudioURLPrefix + key + ".mp3"
}

func (s *SpeechService) fileKey(text string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", text, s.voiceID)))
	return hex.EncodeToString(hash[:])
}

func (s *SpeechService) exists(key string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, err := os.Stat(filepath.Join(s.audioDir, key+".mp3"))
	return err == nil
}

func (s *SpeechService) store(key string, audioData []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return os.WriteFile(filepath.Join(s.audioDir, key+".mp3"), audioData, 0644)
}

// Stats reports the number of stored MP3 files and their total size.
func (s *SpeechService) Stats() (int, int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries, err := os.ReadDir(s.audioDir)
	if err != nil {
		return 0, 0, err
	}

	var totalSize int64
	fileCount := 0

	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".mp3" {
			fileCount++
			if info, err := entry.Info(); err == nil {
				totalSize += info.Size()
			}
		}
	}

	return fileCount, totalSize, nil
}
