package esic

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/esiclivre/esic-api/internal/browser"
	"github.com/esiclivre/esic-api/internal/speech"
)

// Portal element ids and paths for the login challenge.
const (
	loginPath        = "/Account/Login.aspx"
	audioPath        = "/Account/pgAudio.ashx"
	audioFileName    = "somCaptcha.wav"
	refreshButtonID  = "ctl00_MainContent_btnAtualiza"
	challengeLength  = 4
	partMarkerSuffix = ".part"
)

// Solver obtains a usable challenge answer by downloading the login
// page's audio challenge and running it through speech recognition.
type Solver struct {
	session     browser.RemoteSession
	transcriber speech.Transcriber
	baseURL     string
	downloadDir string
	settle      time.Duration
	pollEvery   time.Duration
	maxRetries  int
	logger      *logrus.Logger
}

// NewSolver creates a solver bound to a session.
func NewSolver(session browser.RemoteSession, transcriber speech.Transcriber, baseURL, downloadDir string, pollEvery time.Duration, maxRetries int, logger *logrus.Logger) *Solver {
	return &Solver{
		session:     session,
		transcriber: transcriber,
		baseURL:     baseURL,
		downloadDir: downloadDir,
		settle:      3 * time.Second,
		pollEvery:   pollEvery,
		maxRetries:  maxRetries,
		logger:      logger,
	}
}

// Solve returns a length-4 answer for the current login challenge. It
// keeps requesting fresh challenges until one transcribes cleanly:
// unrecognized speech and wrong-length transcripts are retries, never
// errors. The only failures are context cancellation and losing the
// browser.
func (s *Solver) Solve(ctx context.Context) (string, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if attempt > 0 {
			// Ask the portal for a new challenge before retrying.
			if err := s.session.Click(ctx, refreshButtonID); err != nil {
				return "", fmt.Errorf("refresh challenge: %w", err)
			}
		}

		if err := s.downloadAudio(ctx); err != nil {
			return "", err
		}

		transcript, err := s.transcriber.Transcribe(ctx, filepath.Join(s.downloadDir, audioFileName))
		if err == speech.ErrNotRecognized {
			s.logger.WithField("component", "solver").Debug("Challenge audio not recognized, refreshing")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("transcribe challenge: %w", err)
		}

		answer := NormalizeAnswer(transcript)
		s.logger.WithFields(logrus.Fields{
			"component": "solver",
			"answer":    answer,
		}).Info("Transcribed challenge")
		if len(answer) == challengeLength {
			return answer, nil
		}
	}
}

// downloadAudio fetches a fresh challenge audio into the download dir,
// replacing any stale copy first so the browser cannot rename the new
// file to avoid a collision.
func (s *Solver) downloadAudio(ctx context.Context) error {
	stale := filepath.Join(s.downloadDir, audioFileName)
	if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale audio: %w", err)
	}

	// Cache-busting query; the portal serves the same audio otherwise.
	url := fmt.Sprintf("%s%s?%d", s.baseURL, audioPath, rand.Intn(400)+1)
	s.logger.WithField("component", "solver").Info("Downloading challenge audio")
	if err := s.session.Navigate(ctx, url); err != nil {
		return fmt.Errorf("download challenge audio: %w", err)
	}

	// Give the download a moment to start before watching for the
	// in-progress marker.
	if err := sleepCtx(ctx, s.settle); err != nil {
		return err
	}
	return s.waitDownloads(ctx)
}

// waitDownloads blocks until no in-progress download marker remains in
// the download dir, up to the retry budget.
func (s *Solver) waitDownloads(ctx context.Context) error {
	for i := 0; i < s.maxRetries; i++ {
		pending, err := hasPartMarker(s.downloadDir, audioFileName+partMarkerSuffix)
		if err != nil {
			return err
		}
		if !pending {
			return nil
		}
		if err := sleepCtx(ctx, s.pollEvery); err != nil {
			return err
		}
	}
	return fmt.Errorf("challenge audio download did not finish")
}

func hasPartMarker(dir, name string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read download dir: %w", err)
	}
	for _, e := range entries {
		if e.Name() == name {
			return true, nil
		}
	}
	return false, nil
}

// NormalizeAnswer collapses the recognizer's rendering of the
// challenge: the filler token "ver " comes back for the letter v, and
// digits arrive space-separated.
func NormalizeAnswer(transcript string) string {
	answer := strings.ReplaceAll(transcript, "ver ", "v")
	return strings.ReplaceAll(answer, " ", "")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
