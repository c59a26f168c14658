package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunSchemaWritesValidJSONToStdout(t *testing.T) {
	var out bytes.Buffer
	schemaCmd.SetOut(&out)

	require.NoError(t, runSchema(schemaCmd, nil))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "bucketbench Configuration", decoded["title"])
}
