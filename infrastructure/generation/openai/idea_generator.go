package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"atelier/application/ports"
	pkgerrors "atelier/pkg/errors"
)

const (
	saveIdeaTool = "savePaintingIdea"

	ideaSystemPrompt  = "You are a creative painting designer. Generate unique painting concepts that haven't been suggested before."
	saferSystemPrompt = "You are a creative painting designer. Generate a new, safer painting concept that avoids any content that might violate safety guidelines."
)

// IdeaGenerator asks a chat model for one painting concept through a forced
// tool call, so the answer is always structured.
type IdeaGenerator struct {
	client openaisdk.Client
	model  string
	guard  *Guard
	logger *zap.Logger
}

func NewIdeaGenerator(model string, guard *Guard, logger *zap.Logger, opts ...option.RequestOption) *IdeaGenerator {
	return &IdeaGenerator{
		client: openaisdk.NewClient(opts...),
		model:  model,
		guard:  guard,
		logger: logger,
	}
}

func (g *IdeaGenerator) GenerateIdea(ctx context.Context, req ports.IdeaRequest) (ports.GeneratedIdea, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(g.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt(req.Safer)),
			openaisdk.UserMessage(userPrompt(req)),
		},
		Tools: []openaisdk.ChatCompletionToolParam{ideaTool(req.Safer)},
		ToolChoice: openaisdk.ChatCompletionToolChoiceOptionParamOfChatCompletionNamedToolChoice(
			openaisdk.ChatCompletionNamedToolChoiceFunctionParam{Name: saveIdeaTool},
		),
	}

	var idea ports.GeneratedIdea
	err := g.guard.Do(ctx, "idea", func(ctx context.Context) error {
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		idea, err = parseIdea(resp)
		return err
	})
	if err != nil {
		g.logger.Warn("Idea generation failed",
			zap.Int("prior_ideas", len(req.PriorSummaries)),
			zap.Bool("safer", req.Safer),
			zap.Error(err),
		)
		return ports.GeneratedIdea{}, err
	}
	return idea, nil
}

func systemPrompt(safer bool) string {
	if safer {
		return saferSystemPrompt
	}
	return ideaSystemPrompt
}

func userPrompt(req ports.IdeaRequest) string {
	var b strings.Builder
	if req.Safer {
		fmt.Fprintf(&b, "The previous prompt for %q was rejected due to safety concerns.\n", req.TitleText)
	} else {
		fmt.Fprintf(&b, "Create a painting concept for the title: %q.\n", req.TitleText)
	}
	if req.Instructions != "" {
		fmt.Fprintf(&b, "Custom instructions: %s\n", req.Instructions)
	}
	if len(req.PriorSummaries) > 0 {
		fmt.Fprintf(&b, "Previous painting ideas: %s\n", strings.Join(req.PriorSummaries, "; "))
	}
	if req.Safer {
		b.WriteString("Please generate a completely new, safer painting idea that maintains the artistic vision while avoiding any potentially problematic content.")
	} else {
		b.WriteString("Please generate a completely new and different painting idea that hasn't been suggested yet.")
	}
	return b.String()
}

func ideaTool(safer bool) openaisdk.ChatCompletionToolParam {
	description := "Save a painting idea"
	promptDescription := "The full prompt to generate this painting image (100-200 words with detailed visual instructions)"
	if safer {
		description = "Save a safer painting idea"
		promptDescription = "The full prompt to generate this painting image (100-200 words with detailed visual instructions, avoiding any potentially problematic content)"
	}
	return openaisdk.ChatCompletionToolParam{
		Function: openaisdk.FunctionDefinitionParam{
			Name:        saveIdeaTool,
			Description: openaisdk.String(description),
			Parameters: openaisdk.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"summary": map[string]interface{}{
						"type":        "string",
						"description": "A short summary of the painting idea (30-50 words)",
					},
					"fullPrompt": map[string]interface{}{
						"type":        "string",
						"description": promptDescription,
					},
				},
				"required": []string{"summary", "fullPrompt"},
			},
		},
	}
}

func parseIdea(resp *openaisdk.ChatCompletion) (ports.GeneratedIdea, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return ports.GeneratedIdea{}, pkgerrors.NewUpstreamError("ideas", errors.New("empty choices"))
	}
	for _, call := range resp.Choices[0].Message.ToolCalls {
		if call.Function.Name != saveIdeaTool {
			continue
		}
		var idea ports.GeneratedIdea
		if err := json.Unmarshal([]byte(call.Function.Arguments), &idea); err != nil {
			return ports.GeneratedIdea{}, pkgerrors.NewUpstreamError("ideas", fmt.Errorf("malformed tool arguments: %w", err))
		}
		if strings.TrimSpace(idea.Summary) == "" || strings.TrimSpace(idea.FullPrompt) == "" {
			return ports.GeneratedIdea{}, pkgerrors.NewUpstreamError("ideas", errors.New("incomplete idea data"))
		}
		return idea, nil
	}
	return ports.GeneratedIdea{}, pkgerrors.NewUpstreamError("ideas", errors.New("response contained no savePaintingIdea call"))
}

var _ ports.IdeaGenerator = (*IdeaGenerator)(nil)
