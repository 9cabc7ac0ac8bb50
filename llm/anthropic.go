package llm

import (
	"context"
	"os"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicAdapter streams from the Anthropic Messages API.
type AnthropicAdapter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicAdapter creates a new AnthropicAdapter.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicAdapter(ctx context.Context, modelName string) (*AnthropicAdapter, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}
	return newAnthropicAdapter(modelName, option.WithAPIKey(apiKey)), nil
}

func newAnthropicAdapter(modelName string, options ...option.RequestOption) *AnthropicAdapter {
	client := anthropic.NewClient(options...)
	return &AnthropicAdapter{client: &client, model: modelName}
}

func (a *AnthropicAdapter) Stream(ctx context.Context, req Request) (EventStream, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  toAnthropicMessages(conversation(req.History, req.Message)),
		Tools:     toAnthropicTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	return newEventStream(ctx, func(ctx context.Context, emit func(Event) bool) error {
		stream := a.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		// content block index -> tool_use id
		blocks := map[int64]string{}
		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if use, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					blocks[ev.Index] = use.ID
					if !emit(Event{Kind: EventToolCallFragment, ID: use.ID, Name: use.Name}) {
						return ctx.Err()
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				var out Event
				switch d := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					out = Event{Kind: EventText, Text: d.Text}
				case anthropic.InputJSONDelta:
					out = Event{Kind: EventToolCallFragment, ID: blocks[ev.Index], ArgsFragment: d.PartialJSON}
				default:
					continue
				}
				if !emit(out) {
					return ctx.Err()
				}
			}
		}
		if err := stream.Err(); err != nil {
			return errors.Wrapf(err, "anthropic stream failed")
		}
		return nil
	}), nil
}

func toAnthropicMessages(msgs []chatMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		if m.Role == session.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(specs []tools.Spec) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, s := range specs {
		schema := s.Parameters.Map()
		param := anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: schema["properties"]},
		}
		if s.Parameters != nil {
			param.InputSchema.Required = s.Parameters.Required
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}
