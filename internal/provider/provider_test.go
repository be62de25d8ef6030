package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
)

func TestLogSender(t *testing.T) {
	res, err := NewLogSender().Send(context.Background(), &domain.EmailMessage{
		CampaignID: "c1",
		To:         "jane@acme.io",
		Subject:    "Quick idea",
		Type:       domain.MessageInitial,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "log-"))
	assert.Equal(t, domain.ProviderLog, res.Provider)
	assert.False(t, res.SentAt.IsZero())
}
