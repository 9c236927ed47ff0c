package openai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaxb/tele-google/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel answers GenerateContent with queued responses.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	lastUser  string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if len(messages) > 1 {
		if text, ok := messages[1].Parts[0].(llms.TextContent); ok {
			m.lastUser = text.Text
		}
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.responses[i]}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func testClassifier(model llms.Model) *Classifier {
	cfg := ai.NewConfig(ai.WithRetries(2, time.Millisecond))
	return newClassifierWithModel(model, cfg)
}

func TestClassifyAndExtract_Listing(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"```json\n{\"is_listing\": true, \"confidence\": 0.9, \"attributes\": {\"price\": 450, \"currency\": \"usd\", \"category\": \"phone\", \"title\": \"iPhone 13 128GB\", \"memory\": \"128GB\"}}\n```",
	}}
	c := testClassifier(model)

	result, err := c.ClassifyAndExtract(context.Background(), "iPhone 13   128GB,\n $450")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsListing)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	require.NotNil(t, result.Attributes.Price)
	assert.Equal(t, 450.0, *result.Attributes.Price)
	assert.Equal(t, "USD", result.Attributes.Currency)
	assert.Equal(t, "phone", result.Attributes.Category)
	assert.Equal(t, "128GB", result.Attributes.Extra["memory"])
	assert.Equal(t, "iPhone 13 128GB, $450", model.lastUser)
}

func TestClassifyAndExtract_LowConfidenceIsNotListing(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"is_listing": true, "confidence": 0.2, "attributes": {"price": 10, "currency": "USD"}}`,
	}}
	c := testClassifier(model)

	result, err := c.ClassifyAndExtract(context.Background(), "maybe selling something")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsListing)
	assert.Nil(t, result.Attributes.Price)
}

func TestClassifyAndExtract_NotListing(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"is_listing": false, "confidence": 0.99}`}}
	c := testClassifier(model)

	result, err := c.ClassifyAndExtract(context.Background(), "Rahmat hammaga!")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsListing)
}

func TestClassifyAndExtract_EmptyTextSkipsModel(t *testing.T) {
	model := &scriptedModel{}
	c := testClassifier(model)

	result, err := c.ClassifyAndExtract(context.Background(), "  \n\t ")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, model.calls)
}

func TestClassifyAndExtract_RepairsMalformedJSON(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"not json at all",
		`{"is_listing": true, "confidence": 0.8,}`,
	}}
	c := testClassifier(model)

	result, err := c.ClassifyAndExtract(context.Background(), "Gentra 2020, 11500$")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsListing)
	assert.Equal(t, 2, model.calls)
}

func TestClassifyAndExtract_GivesUpAfterParseAttempts(t *testing.T) {
	model := &scriptedModel{responses: []string{"nope", "still nope", "never"}}
	c := testClassifier(model)

	_, err := c.ClassifyAndExtract(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, parseAttempts, model.calls)
}

func TestClassifyAndExtract_RetriesTransportErrors(t *testing.T) {
	model := &scriptedModel{
		errs:      []error{errors.New("connection reset")},
		responses: []string{"", `{"is_listing": false, "confidence": 1}`},
	}
	c := testClassifier(model)

	result, err := c.ClassifyAndExtract(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, model.calls)
}

func TestClassifyAndExtract_NoChoices(t *testing.T) {
	c := testClassifier(&scriptedModel{})

	_, err := c.ClassifyAndExtract(context.Background(), "hello")
	require.ErrorIs(t, err, ai.ErrEmptyResponse)
}

func TestRerank_FiltersIndices(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"relevant_indices": [2, 7, -1, 0, 1.5], "reasoning": "phones first"}`,
	}}
	c := testClassifier(model)
	candidates := []ai.Candidate{{Text: "a"}, {Text: "b"}, {Text: "c"}}

	indices, err := c.Rerank(context.Background(), "ayfon", candidates)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, indices)
	assert.Contains(t, model.lastUser, "User query: ayfon")
	assert.Contains(t, model.lastUser, "[2] c")
}

func TestRerank_EmptyCandidates(t *testing.T) {
	model := &scriptedModel{}
	c := testClassifier(model)

	indices, err := c.Rerank(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.Empty(t, indices)
	assert.Equal(t, 0, model.calls)
}

func TestRerank_ModelFailure(t *testing.T) {
	boom := errors.New("boom")
	model := &scriptedModel{errs: []error{boom, boom}}
	c := testClassifier(model)

	_, err := c.Rerank(context.Background(), "q", []ai.Candidate{{Text: "a"}})
	require.ErrorIs(t, err, boom)
}
