package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := New(false, &buf)

	log.WithField("nameplate", "7").Info("code allocated")
	log.Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "code allocated", entry["msg"])
	assert.Equal(t, "7", entry["nameplate"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewDebugText(t *testing.T) {
	var buf bytes.Buffer
	log := New(true, &buf)

	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, logrus.StandardLogger(), OrDefault(nil))

	log := Discard()
	assert.Equal(t, log, OrDefault(log))
}
