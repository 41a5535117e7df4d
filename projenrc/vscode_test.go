package projenrc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionContributes(t *testing.T) {
	data, err := json.Marshal(ExtensionContributes())
	require.NoError(t, err)

	var manifest struct {
		Configuration struct {
			Properties map[string]struct {
				Default *string `json:"default"`
			} `json:"properties"`
		} `json:"configuration"`
	}
	require.NoError(t, json.Unmarshal(data, &manifest))
	props := manifest.Configuration.Properties
	require.Len(t, props, 3)
	assert.Nil(t, props["textlsp.server.path"].Default)
	require.NotNil(t, props["textlsp.logLevel"].Default)
	assert.Equal(t, "info", *props["textlsp.logLevel"].Default)
	require.NotNil(t, props["textlsp.references.extension"].Default)
	assert.Equal(t, ".txt", *props["textlsp.references.extension"].Default)
}
