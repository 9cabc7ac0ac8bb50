package llm

import (
	"context"
	"encoding/json"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockAdapter streams Anthropic models hosted on AWS Bedrock.
type BedrockAdapter struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockAdapter creates a new BedrockAdapter.
// It requires AWS credentials to be configured in the environment.
func NewBedrockAdapter(ctx context.Context, modelID string) (*BedrockAdapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &BedrockAdapter{client: bedrockruntime.NewFromConfig(cfg), modelID: modelID}, nil
}

func (b *BedrockAdapter) Stream(ctx context.Context, req Request) (EventStream, error) {
	body, err := createBedrockRequest(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Bedrock request")
	}

	return newEventStream(ctx, func(ctx context.Context, emit func(Event) bool) error {
		out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(b.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to invoke Bedrock model")
		}
		stream := out.GetStream()
		defer stream.Close()

		blocks := map[int64]string{}
		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			events, err := decodeBedrockChunk(chunk.Value.Bytes, blocks)
			if err != nil {
				return err
			}
			for _, ev := range events {
				if !emit(ev) {
					return ctx.Err()
				}
			}
		}
		if err := stream.Err(); err != nil {
			return errors.Wrapf(err, "bedrock stream failed")
		}
		return nil
	}), nil
}

// createBedrockRequest builds the Anthropic messages body Bedrock expects.
func createBedrockRequest(req Request) ([]byte, error) {
	var messages []map[string]interface{}
	for _, m := range conversation(req.History, req.Message) {
		messages = append(messages, map[string]interface{}{
			"role": string(m.Role),
			"content": []map[string]interface{}{
				{"type": "text", "text": m.Content},
			},
		})
	}
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        anthropicMaxTokens,
		"messages":          messages,
	}
	if req.System != "" {
		request["system"] = req.System
	}
	if len(req.Tools) > 0 {
		request["tools"] = tools.ProjectSpecs(req.Tools, tools.FormatInputSchema)
	}
	return json.Marshal(request)
}

// bedrockChunk is one Anthropic streaming event as delivered in a Bedrock chunk.
type bedrockChunk struct {
	Type         string `json:"type"`
	Index        int64  `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeBedrockChunk translates one chunk into events. blocks maps content
// block indexes to tool_use ids across calls.
func decodeBedrockChunk(data []byte, blocks map[int64]string) ([]Event, error) {
	var c bedrockChunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock chunk")
	}
	switch c.Type {
	case "content_block_start":
		if c.ContentBlock.Type == "tool_use" {
			blocks[c.Index] = c.ContentBlock.ID
			return []Event{{Kind: EventToolCallFragment, ID: c.ContentBlock.ID, Name: c.ContentBlock.Name}}, nil
		}
	case "content_block_delta":
		switch c.Delta.Type {
		case "text_delta":
			return []Event{{Kind: EventText, Text: c.Delta.Text}}, nil
		case "input_json_delta":
			id, ok := blocks[c.Index]
			if !ok {
				return nil, errors.New("input_json_delta for unknown content block %d", c.Index)
			}
			return []Event{{Kind: EventToolCallFragment, ID: id, ArgsFragment: c.Delta.PartialJSON}}, nil
		}
	case "error":
		if c.Error != nil {
			return nil, errors.New("Bedrock API error: %s: %s", c.Error.Type, c.Error.Message)
		}
		return nil, errors.New("Bedrock API error")
	}
	return nil, nil
}
