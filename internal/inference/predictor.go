// Package inference talks to the model that scores cytology images.
//
// The model is an external collaborator: it receives image bytes and returns
// one probability per raw class. This package folds those into the reported
// classes and picks a diagnosis. Any collaborator failure is reported as
// common.ErrInference; no fallback prediction is ever substituted.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/common"
)

const (
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// Predictor scores an image against the reported classes.
type Predictor interface {
	Predict(ctx context.Context, image []byte) ([]float64, error)
	Labels() []string
}

type predictRequest struct {
	Image string `json:"image"`
}

type predictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

// HTTPPredictor posts images to a model server as {"image": "<base64>"} and
// expects {"probabilities": [...]} with one entry per raw class.
type HTTPPredictor struct {
	url     string
	mapping ClassMapping
	client  *http.Client
}

type HTTPOption func(*HTTPPredictor)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPPredictor) { p.client = c }
}

func WithMapping(m ClassMapping) HTTPOption {
	return func(p *HTTPPredictor) { p.mapping = m }
}

// NewHTTPPredictor returns a predictor for the model server at url.
func NewHTTPPredictor(url string, timeout time.Duration, opts ...HTTPOption) (*HTTPPredictor, error) {
	if url == "" {
		return nil, fmt.Errorf("model url is empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &HTTPPredictor{
		url:     url,
		mapping: DefaultMapping(),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.mapping.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *HTTPPredictor) Labels() []string {
	return p.mapping.Labels()
}

// Predict returns the remapped class distribution for image.
func (p *HTTPPredictor) Predict(ctx context.Context, image []byte) ([]float64, error) {
	body, err := json.Marshal(predictRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", common.ErrInference, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", common.ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", common.ErrInference, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: http status %d", common.ErrInference, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: decode response: %v", common.ErrInference, err)
	}

	if resp.StatusCode != http.StatusOK {
		if result.Error != "" {
			return nil, fmt.Errorf("%w: http status %d: %s", common.ErrInference, resp.StatusCode, result.Error)
		}
		return nil, fmt.Errorf("%w: http status %d", common.ErrInference, resp.StatusCode)
	}

	probs, err := p.mapping.Remap(result.Probabilities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInference, err)
	}
	return probs, nil
}
