package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiAdapter streams from the Google Gemini API.
type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// NewGeminiAdapter creates a new GeminiAdapter.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiAdapter(ctx context.Context, modelName string) (*GeminiAdapter, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiAdapter{client: client, model: modelName}, nil
}

func (g *GeminiAdapter) Stream(ctx context.Context, req Request) (EventStream, error) {
	// A fresh model per turn, so concurrent conversations never share tool or prompt settings.
	model := g.client.GenerativeModel(g.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	model.Tools = toGeminiTools(req.Tools)

	msgs := conversation(req.History, req.Message)
	if len(msgs) == 0 {
		return nil, errors.New("nothing to send")
	}
	last := msgs[len(msgs)-1]
	chat := model.StartChat()
	chat.History = toGeminiContent(msgs[:len(msgs)-1])

	return newEventStream(ctx, func(ctx context.Context, emit func(Event) bool) error {
		iter := chat.SendMessageStream(ctx, genai.Text(last.Content))
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "gemini stream failed")
			}
			for _, ev := range geminiResponseEvents(resp) {
				if !emit(ev) {
					return ctx.Err()
				}
			}
		}
	}), nil
}

// geminiResponseEvents converts one streamed response. Gemini delivers each
// function call whole and without an id, so one is minted and the arguments
// travel as a single fragment.
func geminiResponseEvents(resp *genai.GenerateContentResponse) []Event {
	var events []Event
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				if p != "" {
					events = append(events, Event{Kind: EventText, Text: string(p)})
				}
			case genai.FunctionCall:
				if p.Args == nil {
					p.Args = map[string]any{}
				}
				args, err := json.Marshal(p.Args)
				if err != nil {
					log.Warn().Str("tool", p.Name).Err(err).Msg("Could not encode function call arguments")
					args = []byte("{}")
				}
				events = append(events, Event{
					Kind:         EventToolCallFragment,
					ID:           "call_" + uuid.NewString(),
					Name:         p.Name,
					ArgsFragment: string(args),
				})
			}
		}
	}
	return events
}

func toGeminiContent(msgs []chatMessage) []*genai.Content {
	var out []*genai.Content
	for _, m := range msgs {
		role := "user"
		if m.Role == session.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return out
}

func toGeminiTools(specs []tools.Spec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, s := range specs {
		fd := &genai.FunctionDeclaration{Name: s.Name, Description: s.Description}
		// Gemini rejects object schemas without properties.
		if s.Parameters != nil && len(s.Parameters.Properties) > 0 {
			fd.Parameters = toGeminiSchema(s.Parameters)
		}
		decls = append(decls, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiSchema(s *tools.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        geminiType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGeminiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}
