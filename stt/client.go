package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"hear.town/snd"
)

// Client submits audio to an HTTP transcription engine as a multipart WAV
// upload and decodes the response in the format fixed at construction.
type Client struct {
	endpoint     string
	apiKey       string
	outputFormat string
	httpClient   *http.Client
	logger       *log.Logger
}

type Config struct {
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
	OutputFormat string // "json" or "text"
}

type jsonResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Duration   float64 `json:"duration"`
}

func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	switch cfg.OutputFormat {
	case "":
		cfg.OutputFormat = "json"
	case "json", "text":
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.OutputFormat)
	}

	return &Client{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		outputFormat: cfg.OutputFormat,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		logger:       logger,
	}, nil
}

func (c *Client) Transcribe(
	ctx context.Context,
	samples []float32,
	sampleRate int,
) (Result, error) {
	if len(samples) == 0 {
		return Result{}, nil
	}

	wav, err := snd.EncodeWAV(snd.ToInt16(samples), sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("encode audio: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return Result{}, fmt.Errorf("write audio: %w", err)
	}
	if err := writer.WriteField("sample_rate", strconv.Itoa(sampleRate)); err != nil {
		return Result{}, fmt.Errorf("write sample rate: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf(
			"transcription engine returned %d: %s",
			resp.StatusCode, string(raw),
		)
	}

	result, err := c.decode(resp.Body)
	if err != nil {
		return Result{}, err
	}

	c.logger.Debug(
		"transcribed",
		"samples", len(samples),
		"elapsed", time.Since(started),
		"chars", len(result.Text),
	)
	return result, nil
}

func (c *Client) decode(body io.Reader) (Result, error) {
	if c.outputFormat == "text" {
		raw, err := io.ReadAll(body)
		if err != nil {
			return Result{}, fmt.Errorf("read response: %w", err)
		}
		return Result{Text: string(raw)}, nil
	}

	var parsed jsonResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return Result{
		Text:       parsed.Text,
		Confidence: parsed.Confidence,
		Duration:   parsed.Duration,
	}, nil
}
