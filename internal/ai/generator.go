// Package ai wraps the generative text service and the helpers used to pull
// structured JSON out of free-text model output.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/tinoosan/fintrack/internal/metrics"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrDisabled is returned by Disabled when no API key is configured.
var ErrDisabled = errors.New("ai: generative service not configured")

// Generator turns a prompt into a completion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini calls Google's Gemini API through the genai SDK.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini builds a Gemini generator. Every call is bounded by timeout.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration) (*Gemini, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: create genai client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	metrics.OutboundDuration.WithLabelValues("ai", metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("ai: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("ai: empty response from model")
	}
	return text, nil
}

// Disabled is the Generator used when no API key is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, string) (string, error) { return "", ErrDisabled }
