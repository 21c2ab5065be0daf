// Package openai plans query intents with an OpenAI-compatible chat model.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guillermoBallester/tally/internal/core/domain"
	goopenai "github.com/sashabaranov/go-openai"
)

// ChatClient is the part of the go-openai client the planner uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Config holds the endpoint settings for NewClient.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewClient builds a go-openai client for cfg.
func NewClient(cfg Config) *goopenai.Client {
	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return goopenai.NewClientWithConfig(clientConfig)
}

// Planner turns questions into query intents.
type Planner struct {
	client ChatClient
	model  string
	logger *slog.Logger
}

func NewPlanner(client ChatClient, model string, logger *slog.Logger) *Planner {
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &Planner{client: client, model: model, logger: logger}
}

func (p *Planner) Plan(ctx context.Context, question string, profile *domain.SchemaProfile) (*domain.QueryIntent, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidIntent)
	}
	system, err := systemPrompt(profile)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: p.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: question},
		},
		Temperature: 0,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("planner request failed (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("planner request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: planner returned no choices", domain.ErrInvalidIntent)
	}

	p.logger.DebugContext(ctx, "intent planned",
		slog.String("llm.model", p.model),
		slog.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
		slog.Duration("elapsed", time.Since(start)),
	)

	return domain.ParseQueryIntent([]byte(stripFences(resp.Choices[0].Message.Content)))
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type promptColumn struct {
	Name      string            `json:"name"`
	Type      domain.ColumnType `json:"type"`
	Groupable bool              `json:"groupable"`
}

type promptContext struct {
	Table          string                   `json:"table"`
	Roles          map[domain.Role]string   `json:"roles"`
	Columns        []promptColumn           `json:"columns"`
	DistinctValues map[domain.Role][]string `json:"distinctValues,omitempty"`
	MinDate        string                   `json:"minDate,omitempty"`
	MaxDate        string                   `json:"maxDate,omitempty"`
}

const instructions = `You translate analytical questions about one sales table into a JSON query intent.
Reply with a single JSON object and nothing else:
{
  "filters": {"region": [..], "item_type": [..], "channel": [..], "date": ["YYYY-MM-DD", "YYYY-MM-DD"]},
  "extraFilter": [{"column": "<raw column>", "op": "=|!=|>|>=|<|<=|IN|NOT IN|BETWEEN|LIKE|NOT LIKE|ILIKE|IS NULL|IS NOT NULL", "value": ..}],
  "metrics": [{"function": "SUM|AVG|MIN|MAX|COUNT|COUNT_DISTINCT", "column": "<role or column>"}],
  "group_by": ["<role, column, year, quarter or month>"],
  "order_by": [{"function": "<optional>", "column": "<role or column>", "direction": "ASC|DESC"}],
  "limit": <optional positive integer>,
  "notes": ["<assumptions>"]
}
Only use roles listed under "roles" and columns listed under "columns". Filter values for region,
item_type and channel must come from "distinctValues" when it lists that role. Omit keys you do not need.`

func systemPrompt(profile *domain.SchemaProfile) (string, error) {
	ctx := promptContext{
		Table:          profile.TableName,
		Roles:          profile.RoleMapping,
		DistinctValues: profile.DistinctValues,
		MinDate:        profile.Stats.MinDate,
		MaxDate:        profile.Stats.MaxDate,
	}
	for _, c := range profile.Columns {
		ctx.Columns = append(ctx.Columns, promptColumn{
			Name:      c.Name,
			Type:      c.Type,
			Groupable: c.Cardinality.Groupable(),
		})
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding planner context: %w", err)
	}
	return instructions + "\n\nDataset:\n" + string(data), nil
}
