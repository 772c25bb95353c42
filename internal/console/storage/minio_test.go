package storage

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

func TestObjectKey(t *testing.T) {
	require.Equal(t, "executions/e1/a1.json", ObjectKey("e1", "a1"))
}

func TestEncodeResult(t *testing.T) {
	data, err := encodeResult("e1", &model.AgentResult{
		AgentID:         "a1",
		CommandID:       "c1",
		ExecutionResult: fleetv1alpha1.ExecutionResult{Status: fleetv1alpha1.ResultTimeout, ExitCode: -1, Stdout: "partial"},
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "e1", got["execution_id"])
	require.Equal(t, "a1", got["agent_id"])
	require.Equal(t, "timeout", got["status"])
	require.Equal(t, -1.0, got["exit_code"])
	require.Equal(t, "partial", got["stdout"])
}

func TestGeneratePresignedURL(t *testing.T) {
	opts := options.NewS3Options()
	opts.Endpoint = "minio.local:9000"
	opts.AccessKeyID = "access"
	opts.SecretAccessKey = "secret"
	opts.UseSSL = false

	a, err := NewMinIOArchive(opts)
	require.NoError(t, err)

	// Presigning is computed locally when the region is known.
	raw, err := a.GeneratePresignedURL(context.Background(), "e1", "a1", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "minio.local:9000", u.Host)
	require.True(t, strings.HasSuffix(u.Path, "/syncpeer-results/executions/e1/a1.json"), u.Path)
	require.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}
