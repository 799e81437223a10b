// File: internal/agent/model.go
package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/config"
)

// ChatMessage is one message of a model conversation. Unlike
// session.Message it can carry tool-call structure: assistant messages echo
// the tool calls the model issued, tool messages carry a call's result.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant messages only
	ToolCallID string     // tool messages only
	Name       string     // tool messages only: the tool's name
}

// ToolCall is a structured request from the model naming a tool and
// supplying its arguments as raw JSON.
type ToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// ToolDefinition is the schema advertised to the model for one tool.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ModelResponse is the model's answer for one round: either final text or
// one or more tool calls (a response may technically carry both; tool calls
// take precedence in the loop).
type ModelResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// ModelClient abstracts the chat-completions API so the loop can be driven
// by a scripted fake in tests.
type ModelClient interface {
	Complete(ctx context.Context, msgs []ChatMessage, tools []ToolDefinition) (*ModelResponse, error)
}

// OpenAIModelClient talks to any OpenAI-compatible chat-completions endpoint
// (Groq, OpenAI, local gateways) with function tools enabled.
type OpenAIModelClient struct {
	client openai.Client
	cfg    config.ModelConfig
	logger *zap.Logger
}

var _ ModelClient = (*OpenAIModelClient)(nil)

// NewOpenAIModelClient builds a client for the configured endpoint.
func NewOpenAIModelClient(cfg config.ModelConfig, logger *zap.Logger) *OpenAIModelClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}
	return &OpenAIModelClient{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger.Named("model_client"),
	}
}

// Complete performs one chat-completions round trip.
func (c *OpenAIModelClient) Complete(ctx context.Context, msgs []ChatMessage, tools []ToolDefinition) (*ModelResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.Name),
		Messages:    toOpenAIMessages(msgs),
		Temperature: openai.Float(c.cfg.Temperature),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	msg := completion.Choices[0].Message
	resp := &ModelResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:            tc.ID,
			Name:          tc.Function.Name,
			ArgumentsJSON: tc.Function.Arguments,
		})
	}

	c.logger.Debug("Model round trip complete.",
		zap.String("model", c.cfg.Name),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("content_len", len(resp.Content)))
	return resp, nil
}

func toOpenAIMessages(msgs []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				},
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.ArgumentsJSON,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}
	return out
}
