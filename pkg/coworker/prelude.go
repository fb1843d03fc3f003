package coworker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-coworker/pkg/audioio"
	"github.com/teslashibe/go-coworker/pkg/emotion"
	"github.com/teslashibe/go-coworker/pkg/session"
)

// PreludeResult is what one start-interaction pass produced.
type PreludeResult struct {
	Transcription string          `json:"transcription"`
	Emotions      []emotion.Score `json:"emotions,omitempty"`
	Reply         string          `json:"reply,omitempty"`
	Spoken        bool            `json:"spoken"`
}

// runPrelude records a short clip, analyzes it, asks for a reply and speaks
// it. Steps whose collaborator is not configured are skipped.
func (a *App) runPrelude(ctx context.Context) error {
	_, err := a.Prelude(ctx)
	return err
}

// Prelude runs the start-interaction pipeline once.
func (a *App) Prelude(ctx context.Context) (PreludeResult, error) {
	var res PreludeResult
	if a.emotion == nil {
		return res, ErrPreludeDisabled
	}
	start := time.Now()

	a.announce(session.StatusInfo, fmt.Sprintf("recording for %s", a.config.RecordDuration))
	path, err := a.record(ctx)
	if err != nil {
		return res, err
	}
	defer os.Remove(path)

	analysis, err := a.emotion.Analyze(ctx, path)
	if err != nil {
		return res, err
	}
	if analysis.Empty() {
		a.announce(session.StatusError, "analysis unavailable")
		return res, nil
	}
	res.Transcription, res.Emotions = analysis.Transcription, analysis.Emotions
	a.announce(session.StatusMessage, "You said: "+res.Transcription)

	if a.chat == nil {
		return res, nil
	}
	reply, err := a.chat.Complete(ctx, a.config.SystemPrompt, res.Transcription)
	if err != nil {
		return res, err
	}
	res.Reply = reply
	a.announce(session.StatusMessage, "Assistant: "+reply)

	if a.synth == nil {
		return res, nil
	}
	speech, err := a.synth.Synthesize(ctx, reply)
	if err != nil {
		a.announce(session.StatusError, "Failed to synthesize speech")
		return res, err
	}
	if a.player != nil {
		if err := a.player.Play(ctx, speech.Audio); err != nil {
			return res, err
		}
		res.Spoken = true
	}

	a.logger.Info("prelude complete",
		"chars", len(res.Transcription),
		"spoken", res.Spoken,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

// record captures a clip at the recording rate and writes it to a temp WAV.
func (a *App) record(ctx context.Context) (string, error) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = a.config.AudioBackend
	cfg.SampleRate = audioio.RecordSampleRate

	src, err := audioio.NewSource(cfg, a.logger)
	if err != nil {
		return "", err
	}
	defer src.Close()

	clip, err := audioio.Record(ctx, src, a.config.RecordDuration)
	if err != nil {
		return "", err
	}
	return audioio.WriteTempWAV(clip)
}

// announce publishes a status line outside the session's own feed.
func (a *App) announce(kind session.StatusKind, text string) {
	s := session.Status{
		Kind: kind,
		Text: text,
		At:   time.Now(),
	}
	if a.driver != nil {
		s.SessionID = a.driver.SessionID()
	}
	a.observer().OnStatus(s)
}
