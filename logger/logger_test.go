package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Service: "giftshop", Env: "prod", Level: "warn", Output: &buf})

	log.Info("dropped")
	log.Warn("kept")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "giftshop", line["service"])
	assert.Equal(t, "prod", line["env"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel(" DEBUG "))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, parseLevel("nonsense"))
}
