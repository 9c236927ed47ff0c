// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shaxb/tele-google/ai"
	"github.com/shaxb/tele-google/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// parseAttempts is how many times a malformed JSON answer is re-requested.
const parseAttempts = 3

// Classifier implements ai.Classifier using OpenAI-compatible chat APIs.
type Classifier struct {
	client        llms.Model
	minConfidence float64
	maxRetries    int
	retryDelay    time.Duration
	logger        *slog.Logger
}

// listingVerdict matches the structure the listing prompt asks for.
type listingVerdict struct {
	IsListing  bool            `json:"is_listing"`
	Confidence *float64        `json:"confidence"`
	Attributes core.Attributes `json:"attributes"`
}

// rerankVerdict matches the structure the rerank prompt asks for.
type rerankVerdict struct {
	RelevantIndices []float64 `json:"relevant_indices"`
	Reasoning       string    `json:"reasoning"`
}

func newClassifier(config *ai.Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, err
	}
	return newClassifierWithModel(client, config), nil
}

func newClassifierWithModel(client llms.Model, config *ai.Config) *Classifier {
	return &Classifier{
		client:        client,
		minConfidence: config.MinConfidence,
		maxRetries:    config.MaxRetries,
		retryDelay:    config.RetryDelay,
		logger:        slog.Default().With("component", "openai-classifier"),
	}
}

// NewClassifier creates a new classifier using the provided configuration.
func NewClassifier(config *ai.Config) (ai.Classifier, error) {
	return newClassifier(config)
}

// ClassifyAndExtract asks the model whether text is a listing and for its
// attributes. Answers below the configured confidence are reported as not a
// listing. A missing confidence counts as certain.
func (c *Classifier) ClassifyAndExtract(ctx context.Context, text string) (*ai.Classification, error) {
	text = truncateRunes(cleanText(text), maxInputRunes)
	if text == "" {
		return nil, nil
	}

	start := time.Now()
	var verdict listingVerdict
	raw, err := c.generateJSON(ctx, buildListingPrompt(), text, 0.1, &verdict)
	if err != nil {
		return nil, err
	}

	confidence := 1.0
	if verdict.Confidence != nil {
		confidence = math.Max(0, math.Min(1, *verdict.Confidence))
	}
	result := &ai.Classification{
		IsListing:  verdict.IsListing && confidence >= c.minConfidence,
		Confidence: confidence,
		Raw:        raw,
		Elapsed:    time.Since(start),
	}
	if result.IsListing {
		result.Attributes = verdict.Attributes
	}

	c.logger.Debug("classified text",
		"is_listing", result.IsListing,
		"confidence", confidence,
		"elapsed", result.Elapsed)
	return result, nil
}

// Rerank asks the model to order candidates by relevance to query.
// Indices outside the candidate range are discarded.
func (c *Classifier) Rerank(ctx context.Context, query string, candidates []ai.Candidate) ([]int, error) {
	if len(candidates) == 0 {
		return []int{}, nil
	}

	var verdict rerankVerdict
	if _, err := c.generateJSON(ctx, buildRerankSystemPrompt(), buildRerankUserPrompt(query, candidates), 0.2, &verdict); err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(verdict.RelevantIndices))
	for _, f := range verdict.RelevantIndices {
		i := int(f)
		if float64(i) != f || i < 0 || i >= len(candidates) {
			continue
		}
		indices = append(indices, i)
	}

	c.logger.Debug("reranked candidates",
		"candidates", len(candidates),
		"returned", len(verdict.RelevantIndices),
		"kept", len(indices),
		"reasoning", verdict.Reasoning)
	return indices, nil
}

// generateJSON sends a system and user message pair and decodes the JSON
// answer into out. Transport errors are retried with backoff; unparseable
// answers are re-requested up to parseAttempts times. Returns the raw text
// of the answer that decoded.
func (c *Classifier) generateJSON(ctx context.Context, system, user string, temperature float64, out any) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	var lastErr error
	for attempt := 0; attempt < parseAttempts; attempt++ {
		var response *llms.ContentResponse
		err := ai.RetryWithBackoff(ctx, func() error {
			var err error
			response, err = c.client.GenerateContent(ctx, content,
				llms.WithTemperature(temperature), llms.WithJSONMode())
			return err
		}, c.maxRetries, c.retryDelay)
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return "", err
		}

		if response == nil || len(response.Choices) < 1 {
			return "", ai.ErrEmptyResponse
		}

		responseText := repairJSON(stripCodeFence(response.Choices[0].Content))
		if responseText == "" {
			lastErr = ai.ErrEmptyResponse
			continue
		}

		if err := json.Unmarshal([]byte(responseText), out); err != nil {
			lastErr = err
			c.logger.Warn("error parsing model response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}
		return responseText, nil
	}

	c.logger.Error("failed to parse model response after retries", "err", lastErr)
	return "", fmt.Errorf("parse model response: %w", lastErr)
}
