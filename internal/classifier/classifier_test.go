package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
)

func request() domain.ClassifierRequest {
	return domain.ClassifierRequest{
		CampaignID:  "c1",
		Email:       "jane@acme.io",
		ContactName: "Jane Doe",
		CompanyName: "Acme",
		ReplyText:   "Interesting!",
		Metadata:    map[string]string{"subject": "Re: Quick idea", "followup_count": "1"},
	}
}

func TestHTTPClient_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req domain.ClassifierRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Interesting!", req.ReplyText)
		assert.Equal(t, "c1", req.CampaignID)
		w.Write([]byte(`{"classification":{"intent":"interested","confidence":0.92},"response":"Great, happy to share more.","action":"send_response_and_monitor"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", 5*time.Second, 1)
	res, err := c.Classify(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "interested", res.Classification.Intent)
	assert.Equal(t, domain.ActionSendResponseAndMonitor, res.Action)
	assert.Equal(t, "Great, happy to share more.", res.Response)
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		is     error
	}{
		{"client error", http.StatusBadRequest, `{"error":"bad"}`, nil},
		{"not json", http.StatusOK, `<html>`, ErrInvalidResult},
		{"no action", http.StatusOK, `{"classification":{"intent":"other"}}`, ErrInvalidResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "", time.Second, 1).Classify(context.Background(), request())
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

type fakeBedrock struct {
	input *bedrockruntime.InvokeModelInput
	text  string
	err   error
}

func (f *fakeBedrock) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	body, _ := json.Marshal(map[string]interface{}{
		"content":     []map[string]string{{"type": "text", "text": f.text}},
		"stop_reason": "end_turn",
	})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestBedrock_Classify(t *testing.T) {
	api := &fakeBedrock{text: "```json\n{\"classification\":{\"intent\":\"meeting_request\"},\"response\":\"Here is my calendar.\",\"action\":\"send_calendar_link\"}\n```"}
	b := NewBedrock(api, "")

	res, err := b.Classify(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionSendCalendarLink, res.Action)
	assert.Equal(t, "meeting_request", res.Classification.Intent)

	require.NotNil(t, api.input)
	assert.Equal(t, DefaultModelID, aws.ToString(api.input.ModelId))
	var sent bedrockRequest
	require.NoError(t, json.Unmarshal(api.input.Body, &sent))
	assert.Equal(t, "bedrock-2023-05-31", sent.AnthropicVersion)
	require.Len(t, sent.Messages, 1)
	assert.Contains(t, sent.Messages[0].Content[0].Text, "Interesting!")
	assert.Contains(t, sent.Messages[0].Content[0].Text, "Subject: Re: Quick idea")
}

func TestBedrock_Errors(t *testing.T) {
	_, err := NewBedrock(&fakeBedrock{err: errors.New("throttled")}, "m").Classify(context.Background(), request())
	assert.Error(t, err)

	_, err = NewBedrock(&fakeBedrock{text: "I cannot help with that."}, "m").Classify(context.Background(), request())
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestParseResult(t *testing.T) {
	res, err := parseResult(`Sure. {"classification":{"intent":"unsubscribe"},"action":"remove_from_list"} Done.`)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRemoveFromList, res.Action)

	_, err = parseResult(`{"classification":{"intent":"other"}}`)
	assert.ErrorIs(t, err, ErrInvalidResult)
}
