// file: internal/aegobserve/audit_test.go
package aegobserve

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeParams(t *testing.T) {
	in := map[string]any{
		"name":     "alice",
		"Password": "hunter2",
		"profile": map[string]any{
			"apiKey":       "nope",
			"user_api_key": "k",
			"city":         "Paris",
		},
		"rows": []map[string]any{{"access_token": "t", "age": 30}},
		"list": []any{map[string]any{"secret_answer": "x"}, "plain"},
	}
	out := SanitizeParams(in)

	assert.Equal(t, "alice", out["name"])
	assert.Equal(t, Redacted, out["Password"])

	profile := out["profile"].(map[string]any)
	assert.Equal(t, "nope", profile["apiKey"], "camelCase apiKey does not contain api_key")
	assert.Equal(t, Redacted, profile["user_api_key"])
	assert.Equal(t, "Paris", profile["city"])

	rows := out["rows"].([]any)
	assert.Equal(t, Redacted, rows[0].(map[string]any)["access_token"])
	assert.Equal(t, 30, rows[0].(map[string]any)["age"])

	list := out["list"].([]any)
	assert.Equal(t, Redacted, list[0].(map[string]any)["secret_answer"])
	assert.Equal(t, "plain", list[1])

	assert.Equal(t, "hunter2", in["Password"], "input must not be mutated")
}

func TestIsSensitiveKey(t *testing.T) {
	for _, k := range []string{"password", "DB_PASSWORD", "Authorization", "refresh_token", "pin"} {
		assert.True(t, IsSensitiveKey(k), k)
	}
	for _, k := range []string{"name", "email", "age"} {
		assert.False(t, IsSensitiveKey(k), k)
	}
}

func TestStatementType(t *testing.T) {
	assert.Equal(t, "SELECT", StatementType("  select * from users"))
	assert.Equal(t, "DELETE", StatementType("WITH x AS (SELECT 1) DELETE FROM t WHERE id IN (SELECT * FROM x)"))
	assert.Equal(t, "UNKNOWN", StatementType("   "))
}

func TestNewAuditLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLogger(&buf)
	logger.Info("audit", "operation", "insert", "table", "users")
	logger.Error("audit", "operation", "delete", "error", "denied")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "queryaegis.audit", entry["logger"])
	assert.Equal(t, "delete", entry["operation"])
	assert.Equal(t, slog.LevelError.String(), entry["level"])
}

func TestOpenAuditFile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "audit.log")
	f, err := OpenAuditFile(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("{}\n")
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))

	var buf bytes.Buffer
	level := InitLogger("warn", &buf)
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	slog.Info("hidden")
	slog.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, slog.LevelWarn, level.Level())
}
