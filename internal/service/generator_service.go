package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	config "github.com/xeinst/autopost/configs"
)

// ErrGeneration means no draft gets created. It is not a moderation failure.
var ErrGeneration = errors.New("content generation failed")

// GeneratorService produces draft text from a prompt and source context.
type GeneratorService interface {
	Generate(ctx context.Context, prompt, sourceContext string) (string, error)
}

type generatorService struct {
	cfg    config.Ollama
	client *http.Client
}

func NewGeneratorService(cfg config.Ollama) GeneratorService {
	return &generatorService{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (s *generatorService) Generate(ctx context.Context, prompt, sourceContext string) (string, error) {
	full := prompt
	if sourceContext != "" {
		full = prompt + "\n\nContext:\n" + sourceContext
	}

	body, err := json.Marshal(generateRequest{
		Model:  s.cfg.Model,
		Prompt: full,
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("generation request failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, string(data))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return text, nil
}
