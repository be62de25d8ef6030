package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/classifier"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/provider"
	"github.com/ignite/outreach-engine/internal/provider/resend"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Classifier.URL = "http://classifier.local/classify"
	return cfg
}

func TestBuild_InMemory(t *testing.T) {
	app, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.DB)
	assert.Nil(t, app.Redis)
	require.NotNil(t, app.Engine)
	assert.False(t, app.Engine.Running())
}

func TestBuild_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	assert.NotNil(t, app.Redis)
}

func TestBuild_UnreachableRedisFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1"

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.Redis)
}

func TestNewSender(t *testing.T) {
	cfg := testConfig()

	s, err := NewSender(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &provider.LogSender{}, s)

	cfg.Provider = "resend"
	_, err = NewSender(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Resend.APIKey = "re_test"
	s, err = NewSender(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &resend.Client{}, s)

	cfg.Provider = "carrier-pigeon"
	_, err = NewSender(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewClassifier(t *testing.T) {
	cfg := testConfig()
	c, err := NewClassifier(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &classifier.HTTPClient{}, c)

	cfg.Classifier.URL = ""
	_, err = NewClassifier(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Classifier.Type = "oracle"
	_, err = NewClassifier(context.Background(), cfg)
	assert.Error(t, err)
}
