// Package assemblyai implements the speech-to-text port over the AssemblyAI
// HTTP API: upload the audio, create a transcription job, poll to completion.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/clipforge/clipforge/internal/types"
)

const defaultBaseURL = "https://api.assemblyai.com"

type Adapter struct {
	key          string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

type Option func(*Adapter)

// WithBaseURL overrides the API host, used by tests.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = u }
}

func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) { a.pollInterval = d }
}

func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		key:          apiKey,
		baseURL:      defaultBaseURL,
		client:       &http.Client{Timeout: 5 * time.Minute},
		pollInterval: 3 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	Utterances []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
		Start   int64  `json:"start"`
		End     int64  `json:"end"`
	} `json:"utterances"`
}

func (a *Adapter) Transcribe(ctx context.Context, audioPath string) (types.Transcript, error) {
	audioURL, err := a.upload(ctx, audioPath)
	if err != nil {
		return types.Transcript{}, err
	}

	id, err := a.create(ctx, audioURL)
	if err != nil {
		return types.Transcript{}, err
	}

	for {
		tr, err := a.poll(ctx, id)
		if err != nil {
			return types.Transcript{}, err
		}
		switch tr.Status {
		case "completed":
			return mapTranscript(tr), nil
		case "error":
			return types.Transcript{}, fmt.Errorf("assemblyai: transcription failed: %s", tr.Error)
		}

		select {
		case <-ctx.Done():
			return types.Transcript{}, ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

func (a *Adapter) upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("assemblyai: open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/upload", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.key)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := a.do(req, &out); err != nil {
		return "", fmt.Errorf("assemblyai upload: %w", err)
	}
	if out.UploadURL == "" {
		return "", errors.New("assemblyai upload: empty upload_url")
	}
	return out.UploadURL, nil
}

func (a *Adapter) create(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"audio_url":      audioURL,
		"speaker_labels": true,
		"speech_models":  []string{"slam-1"},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.key)
	req.Header.Set("Content-Type", "application/json")

	var out transcriptResponse
	if err := a.do(req, &out); err != nil {
		return "", fmt.Errorf("assemblyai create: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("assemblyai create: empty transcript id")
	}
	return out.ID, nil
}

func (a *Adapter) poll(ctx context.Context, id string) (transcriptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v2/transcript/"+id, nil)
	if err != nil {
		return transcriptResponse{}, err
	}
	req.Header.Set("Authorization", a.key)

	var out transcriptResponse
	if err := a.do(req, &out); err != nil {
		return transcriptResponse{}, fmt.Errorf("assemblyai poll: %w", err)
	}
	return out, nil
}

func (a *Adapter) do(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(rb))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func mapTranscript(tr transcriptResponse) types.Transcript {
	out := types.Transcript{}
	for _, u := range tr.Utterances {
		out.Utterances = append(out.Utterances, types.Utterance{
			Speaker: u.Speaker,
			Text:    u.Text,
			StartMS: u.Start,
			EndMS:   u.End,
		})
	}
	// The API documents utterances in order; sort anyway so the index
	// invariant never depends on upstream behavior.
	sort.SliceStable(out.Utterances, func(i, j int) bool {
		return out.Utterances[i].StartMS < out.Utterances[j].StartMS
	})
	return out
}
