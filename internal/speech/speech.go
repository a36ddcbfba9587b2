package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrSynthesisFailed = errors.New("speech synthesis failed")

// Synthesizer turns instruction text into encoded audio bytes. Failures
// are reported to the caller but navigation treats them as non-fatal.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// HTTPSynthesizer calls the TTS backend with a bounded timeout.
type HTTPSynthesizer struct {
	url    string
	client *http.Client
}

func NewHTTPSynthesizer(url string, timeout time.Duration) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type request struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if s.url == "" {
		return nil, fmt.Errorf("%w: no backend configured", ErrSynthesisFailed)
	}
	payload, _ := json.Marshal(request{Text: text, Voice: voice})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: backend returned %d", ErrSynthesisFailed, resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	return audio, nil
}
