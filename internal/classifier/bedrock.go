package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// DefaultModelID is used when no model is configured.
const DefaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"

// InvokeAPI is the part of *bedrockruntime.Client the classifier calls.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock classifies replies with an Anthropic model hosted on AWS Bedrock.
type Bedrock struct {
	client  InvokeAPI
	modelID string
	log     *logger.Entry
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

const systemPrompt = `You triage replies to cold outreach emails.
Answer with one JSON object and nothing else:
{"classification":{"intent":"...","confidence":0.0,"reasoning":"..."},"response":"...","action":"...","review_reason":"..."}
intent is one of: interested, meeting_request, question, not_interested, unsubscribe, out_of_office, referral, other.
action is exactly one of: send_response_and_monitor, send_response_and_nurture, send_calendar_link, mark_closed, remove_from_list, wait_and_retry, flag_for_human_review.
response is the short plain-text reply to send when the action sends one; leave it empty otherwise.
Use remove_from_list whenever the sender asks to stop receiving email.
Use flag_for_human_review and set review_reason when unsure.`

// NewBedrock wraps an existing client.
func NewBedrock(client InvokeAPI, modelID string) *Bedrock {
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &Bedrock{client: client, modelID: modelID, log: logger.With("component", "classifier", "classifier", "bedrock")}
}

// NewBedrockFromConfig loads AWS configuration for region and builds the
// runtime client.
func NewBedrockFromConfig(ctx context.Context, region, modelID string) (*Bedrock, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewBedrock(bedrockruntime.NewFromConfig(cfg), modelID), nil
}

// Classify implements reply.Classifier.
func (b *Bedrock) Classify(ctx context.Context, req domain.ClassifierRequest) (*domain.ClassifierResult, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Contact: %s\nCompany: %s\n", req.ContactName, req.CompanyName)
	if s := req.Metadata["subject"]; s != "" {
		fmt.Fprintf(&prompt, "Subject: %s\n", s)
	}
	if s := req.Metadata["followup_count"]; s != "" {
		fmt.Fprintf(&prompt, "Follow-ups already sent: %s\n", s)
	}
	fmt.Fprintf(&prompt, "\nReply:\n%s", req.ReplyText)

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1024,
		System:           systemPrompt,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockContentBlock{{Type: "text", Text: prompt.String()}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke failed: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse bedrock response: %w", err)
	}
	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	result, err := parseResult(text.String())
	if err != nil {
		b.log.Warn("unusable model output", "campaign_id", req.CampaignID, "stop_reason", resp.StopReason)
		return nil, err
	}
	return result, nil
}

// parseResult pulls the first JSON object out of model text, which may be
// wrapped in a code fence or prose.
func parseResult(text string) (*domain.ClassifierResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in model output", ErrInvalidResult)
	}
	var result domain.ClassifierResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if result.Action == "" {
		return nil, fmt.Errorf("%w: missing action", ErrInvalidResult)
	}
	return &result, nil
}
