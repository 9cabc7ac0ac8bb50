package llm

import (
	"context"
	"os"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/google/uuid"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIAdapter streams from the OpenAI Chat Completions API or a compatible endpoint.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

// NewOpenAIAdapter creates a new OpenAIAdapter. It requires the OPENAI_API_KEY
// environment variable and honours OPENAI_BASE_URL for custom endpoints.
func NewOpenAIAdapter(ctx context.Context, modelName string) (*OpenAIAdapter, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	return newOpenAIAdapter(modelName, options...), nil
}

func newOpenAIAdapter(modelName string, options ...option.RequestOption) *OpenAIAdapter {
	// The client must be addressed through a pointer.
	c := openai.NewClient(options...)
	return &OpenAIAdapter{client: &c, model: modelName}
}

func (o *OpenAIAdapter) Stream(ctx context.Context, req Request) (EventStream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: toOpenAIMessages(req.System, conversation(req.History, req.Message)),
		Tools:    toOpenAITools(req.Tools),
	}

	return newEventStream(ctx, func(ctx context.Context, emit func(Event) bool) error {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		ids := map[int64]string{}
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !emit(Event{Kind: EventText, Text: choice.Delta.Content}) {
						return ctx.Err()
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					ev := openAIToolCallEvent(ids, tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
					if !emit(ev) {
						return ctx.Err()
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			return errors.Wrapf(err, "openai stream failed")
		}
		return nil
	}), nil
}

// openAIToolCallEvent converts one streamed tool call delta. Deltas are matched
// by index and the first id seen for an index, real or minted, sticks.
func openAIToolCallEvent(ids map[int64]string, index int64, id, name, args string) Event {
	switch known, ok := ids[index]; {
	case ok:
		id = known
	case id != "":
		ids[index] = id
	default:
		id = "call_" + uuid.NewString()
		ids[index] = id
	}
	return Event{Kind: EventToolCallFragment, ID: id, Name: name, ArgsFragment: args}
}

func toOpenAIMessages(system string, msgs []chatMessage) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		if m.Role == session.RoleAssistant {
			out = append(out, openai.AssistantMessage(m.Content))
		} else {
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(specs []tools.Spec) []openai.ChatCompletionToolUnionParam {
	var out []openai.ChatCompletionToolUnionParam
	for _, s := range specs {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
			Parameters:  openai.FunctionParameters(s.Parameters.Map()),
		}))
	}
	return out
}
