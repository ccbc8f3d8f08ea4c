// Package topicai extracts and clusters video topics with the Anthropic
// API. Parsing of model output is kept in pure functions so it can be
// exercised without network access.
package topicai

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/creatrr/trendwatch/internal/resilience"
)

// Client defines the AI operations the trend detector uses.
type Client interface {
	// ExtractTopics returns one to three specific topic phrases for the
	// given video content (title plus transcript or description).
	ExtractTopics(ctx context.Context, content string) ([]string, error)
	// ClusterTopics groups raw topic phrases into named clusters. Every
	// input topic lands in some cluster; unmatched ones become single-item
	// clusters.
	ClusterTopics(ctx context.Context, topics []string, contextHint string) ([]Cluster, error)
}

// Cluster is one named group of semantically similar topic phrases.
type Cluster struct {
	Name   string   `json:"name"`
	Topics []string `json:"topics"`
}

// maxContentChars bounds the content sent for extraction; beyond this the
// transcript tail adds cost without improving topics.
const maxContentChars = 4000

// clusterBatchSize caps topics per clustering call; larger sets are split
// and the resulting clusters merged by name.
const clusterBatchSize = 50

// Options configures the SDK-backed client.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// OnUsage is called with the token usage of each API call.
	OnUsage func(inputTokens, outputTokens int64)
}

type sdkClient struct {
	client sdk.Client
	opts   Options
	log    *zap.Logger
}

// NewClient creates an Anthropic-backed topic client.
func NewClient(opts Options, log *zap.Logger) Client {
	if opts.Model == "" {
		opts.Model = string(sdk.ModelClaudeHaiku4_5)
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &sdkClient{
		client: sdk.NewClient(option.WithAPIKey(opts.APIKey)),
		opts:   opts,
		log:    log,
	}
}

func (c *sdkClient) complete(ctx context.Context, prompt string, maxTokens int64, temperature float64) (string, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.opts.Model),
		MaxTokens:   maxTokens,
		Temperature: sdk.Float(temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classifyAPIError(err)
	}
	if c.opts.OnUsage != nil {
		c.opts.OnUsage(msg.Usage.InputTokens, msg.Usage.OutputTokens)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// classifyAPIError maps SDK errors onto the pipeline's retry classes.
func classifyAPIError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return resilience.NewRateLimitError(eris.Wrap(err, "topicai: rate limited"), 0)
		case resilience.IsTransientHTTPStatus(apiErr.StatusCode) || apiErr.StatusCode == 529:
			return resilience.NewTransientError(eris.Wrap(err, "topicai: api error"), apiErr.StatusCode)
		}
	}
	return eris.Wrap(err, "topicai: api error")
}

func (c *sdkClient) ExtractTopics(ctx context.Context, content string) ([]string, error) {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	text, err := c.complete(ctx, extractionPrompt(content), 100, 0.3)
	if err != nil {
		return nil, err
	}
	topics := ParseTopicLines(text)
	c.log.Debug("extracted topics", zap.Strings("topics", topics))
	return topics, nil
}

func (c *sdkClient) ClusterTopics(ctx context.Context, topics []string, contextHint string) ([]Cluster, error) {
	unique := dedupe(topics)
	switch len(unique) {
	case 0:
		return nil, nil
	case 1:
		return []Cluster{{Name: unique[0], Topics: unique}}, nil
	}

	if len(unique) > clusterBatchSize {
		return c.clusterInBatches(ctx, unique, contextHint)
	}

	text, err := c.complete(ctx, clusteringPrompt(unique, contextHint), c.opts.MaxTokens, 0.1)
	if err != nil {
		return nil, err
	}

	clusters, err := ParseClusters(text)
	if err != nil {
		// Model occasionally wraps or truncates the JSON; one re-ask is
		// worth the tokens.
		c.log.Warn("cluster response unparseable, retrying", zap.Error(err))
		text, err = c.complete(ctx, clusteringPrompt(unique, contextHint), c.opts.MaxTokens, 0.1)
		if err != nil {
			return nil, err
		}
		clusters, err = ParseClusters(text)
		if err != nil {
			return nil, err
		}
	}
	return EnsureCovered(clusters, unique), nil
}

func (c *sdkClient) clusterInBatches(ctx context.Context, topics []string, contextHint string) ([]Cluster, error) {
	var all []Cluster
	for start := 0; start < len(topics); start += clusterBatchSize {
		end := min(start+clusterBatchSize, len(topics))
		batch, err := c.ClusterTopics(ctx, topics[start:end], contextHint)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return MergeClusters(all), nil
}

func dedupe(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	var out []string
	for _, t := range topics {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
