package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/pkg/httpclient"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/retry"
)

// ensure LLMScorer implements both scorer interfaces
var (
	_ AuthorityScorer = (*LLMScorer)(nil)
	_ RelevanceScorer = (*LLMScorer)(nil)
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.1

	authoritySystemPrompt = `You grade how authoritative a website host is for search whitelisting.
Judge only from the host name, on popularity, expertise, and trustworthiness.
Tiers:
1 - no credibility: spam, scraped, pirated, or machine-generated content farms.
2 - ordinary: personal blogs, small forums, local sites with some original content but no backing.
3 - established: influential industry portals or vertical sites with a stable, complete content system.
4 - top authority: official or sole designated sources such as government, university, or standards bodies.
If unsure, choose the lower tier.
Answer with JSON only: {"label": 1|2|3|4, "rationale": "short reason"}`

	authorityUserPrompt = "Grade the authority tier of this host. Host: %s"

	relevanceSystemPrompt = `You grade how well a web page (title plus content) answers a search query.
Tiers:
2 - the page fully and accurately answers the query; the user needs nothing else.
1 - the page partially covers the query's topic but does not fully answer it.
0 - the page is unrelated to the query, or the content is empty or generic.
Be strict and conservative: only give 2 when the page clearly and completely answers the query; prefer 1 over 2 when in doubt.
Answer with JSON only: {"label": 0|1|2, "rationale": "short reason"}`

	relevanceUserPrompt = "Grade the relevance of the page to the query.\nQuery: %s\nTitle: %s\nContent: %s"
)

// LLMConfig configures the chat-completions scoring client.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	// AuthorityModel and RelevanceModel may name different deployments.
	AuthorityModel string
	RelevanceModel string
	Timeout        time.Duration
	Limiter        *ratelimit.Limiter
	Retry          retry.Policy
	Logger         *slog.Logger
}

// LLMScorer scores hosts and results through an OpenAI-compatible
// chat-completions endpoint.
type LLMScorer struct {
	cfg    LLMConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewLLMScorer creates a scoring client.
func NewLLMScorer(cfg LLMConfig) (*LLMScorer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("scoring: API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("scoring: base URL is required")
	}
	if cfg.AuthorityModel == "" {
		return nil, errors.New("scoring: authority model is required")
	}
	if cfg.RelevanceModel == "" {
		cfg.RelevanceModel = cfg.AuthorityModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LLMScorer{
		cfg:    cfg,
		client: httpclient.New(httpclient.Config{Timeout: cfg.Timeout}),
		logger: logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			// Reasoning models sometimes put the answer here and leave
			// content empty.
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ScoreAuthority grades a host's authority tier (1..4).
func (s *LLMScorer) ScoreAuthority(ctx context.Context, host string) (int, error) {
	label, err := s.classify(ctx, s.cfg.AuthorityModel, authoritySystemPrompt, fmt.Sprintf(authorityUserPrompt, host))
	if err != nil {
		return model.AuthorityFailed, fmt.Errorf("authority score for host %s: %w", host, err)
	}
	if label < model.AuthorityMin || label > model.AuthorityMax {
		return model.AuthorityFailed, fmt.Errorf("authority score for host %s: label %d out of range", host, label)
	}
	return label, nil
}

// ScoreRelevance grades how well the page answers the query (0..2).
func (s *LLMScorer) ScoreRelevance(ctx context.Context, query, title, content string) (int, error) {
	label, err := s.classify(ctx, s.cfg.RelevanceModel, relevanceSystemPrompt, fmt.Sprintf(relevanceUserPrompt, query, title, content))
	if err != nil {
		return model.RelevanceFailed, fmt.Errorf("relevance score for query %q: %w", truncate(query, 50), err)
	}
	if label < model.RelevanceMin || label > model.RelevanceMax {
		return model.RelevanceFailed, fmt.Errorf("relevance score for query %q: label %d out of range", truncate(query, 50), label)
	}
	return label, nil
}

// classify runs one chat completion and extracts the JSON label. An
// unparsable or empty completion counts as a transient failure and is
// retried within the attempt budget.
func (s *LLMScorer) classify(ctx context.Context, modelName, system, user string) (int, error) {
	req := chatRequest{
		Model: modelName,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream:      false,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}

	var label int
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		var resp chatResponse
		err := s.client.PostJSON(ctx, s.cfg.BaseURL+"/chat/completions", map[string]string{
			"Authorization": "Bearer " + s.cfg.APIKey,
		}, req, &resp)
		if err != nil {
			var statusErr *httpclient.StatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return retry.Permanent(err)
			}
			return err
		}
		if resp.Error != nil {
			return fmt.Errorf("upstream error: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty completion")
		}

		text := resp.Choices[0].Message.Content
		if text == "" {
			text = resp.Choices[0].Message.ReasoningContent
		}
		got, ok := parseLabel(text)
		if !ok {
			s.logger.Debug("completion without parsable label", "model", modelName, "text", truncate(text, 120))
			return errors.New("no parsable label in completion")
		}
		label = got
		return nil
	})
	if err != nil {
		return 0, err
	}
	return label, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
