package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSessionName_Valid(t *testing.T) {
	tests := []struct {
		name        string
		sessionName string
	}{
		{"simple lowercase", "myproject"},
		{"with hyphen", "my-project"},
		{"with underscore", "my_project"},
		{"mixed case", "MyProject"},
		{"with numbers", "project123"},
		{"complex valid", "Work-API_v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionName(tt.sessionName)
			assert.NoError(t, err)
		})
	}
}

func TestValidateSessionName_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		sessionName string
		wantErr     string
	}{
		{"empty", "", "session name cannot be empty"},
		{"with slash", "my/project", "session name can only contain"},
		{"with backslash", "my\\project", "session name can only contain"},
		{"with dots", "my..project", "session name can only contain"},
		{"with space", "my project", "session name can only contain"},
		{"too long", string(make([]byte, 65)), "session name too long"},
		{"special chars", "my@project!", "session name can only contain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionName(tt.sessionName)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveSession_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	sessionDir := filepath.Join(tmpDir, "new-session")
	sess := NewSession("new-session", sessionDir)

	err := SaveSession(sess)

	require.NoError(t, err)
	assert.DirExists(t, sessionDir)
	assert.FileExists(t, filepath.Join(sessionDir, "session.json"))
}

func TestSaveSession_WritesValidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	sessionDir := filepath.Join(tmpDir, "test-session")
	sess := NewSession("test-session", sessionDir)
	sess.TurnCount = 4

	err := SaveSession(sess)
	require.NoError(t, err)

	loaded, err := LoadSession(sessionDir)
	require.NoError(t, err)
	assert.Equal(t, sess.Name, loaded.Name)
	assert.Equal(t, sess.TurnCount, loaded.TurnCount)
}

func TestLoadSession_ValidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	sessionDir := filepath.Join(tmpDir, "load-test")
	sess := NewSession("load-test", sessionDir)
	sess.TurnCount = 3
	require.NoError(t, SaveSession(sess))

	loaded, err := LoadSession(sessionDir)

	require.NoError(t, err)
	assert.Equal(t, "load-test", loaded.Name)
	assert.Equal(t, 3, loaded.TurnCount)
	assert.Equal(t, sessionDir, loaded.SessionDir)
}

func TestLoadSession_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()
	sessionDir := filepath.Join(tmpDir, "nonexistent")

	_, err := LoadSession(sessionDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.json not found")
}

func TestLoadSession_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	sessionDir := filepath.Join(tmpDir, "invalid-json")
	require.NoError(t, os.MkdirAll(sessionDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "session.json"), []byte("not json"), 0644))

	_, err := LoadSession(sessionDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse session.json")
}

func TestAppendTurn_CreatesAndAppends(t *testing.T) {
	tmpDir := t.TempDir()
	sessionDir := filepath.Join(tmpDir, "turns-test")

	require.NoError(t, AppendTurn(sessionDir, ChatTurn{Role: RoleUser, Content: "hello"}))
	require.NoError(t, AppendTurn(sessionDir, ChatTurn{Role: RoleAssistant, Content: "hi there", Citations: []string{"a.pdf"}}))

	assert.FileExists(t, filepath.Join(sessionDir, "turns.jsonl"))

	turns, err := LoadTurns(sessionDir)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, []string{"a.pdf"}, turns[1].Citations)
}

func TestLoadTurns_MissingFileIsEmptyHistory(t *testing.T) {
	tmpDir := t.TempDir()
	turns, err := LoadTurns(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAppendTurn_PreservesOrderAcrossManyAppends(t *testing.T) {
	tmpDir := t.TempDir()
	sessionDir := filepath.Join(tmpDir, "ordered")

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		require.NoError(t, AppendTurn(sessionDir, ChatTurn{Role: role, Content: string(rune('a' + i))}))
	}

	turns, err := LoadTurns(sessionDir)
	require.NoError(t, err)
	require.Len(t, turns, 5)
	for i, turn := range turns {
		assert.Equal(t, string(rune('a'+i)), turn.Content)
	}
}

func TestCalculateDirSize_RecursiveCount(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "file1.txt"), make([]byte, 1000), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "subdir"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "subdir", "file2.txt"), make([]byte, 500), 0644))

	size, err := CalculateDirSize(tmpDir)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, size, int64(1500))
}

func TestCalculateDirSize_EmptyDir(t *testing.T) {
	tmpDir := t.TempDir()

	size, err := CalculateDirSize(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestCalculateDirSize_NonexistentDir(t *testing.T) {
	size, err := CalculateDirSize("/nonexistent/path")

	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestSessionMetadata_TimestampPreservation(t *testing.T) {
	tmpDir := t.TempDir()
	sessionDir := filepath.Join(tmpDir, "timestamp-test")
	sess := NewSession("timestamp-test", sessionDir)

	createdAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	lastUsed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	sess.CreatedAt = createdAt
	sess.LastUsed = lastUsed

	require.NoError(t, SaveSession(sess))
	loaded, err := LoadSession(sessionDir)

	require.NoError(t, err)
	assert.True(t, loaded.CreatedAt.Equal(createdAt), "CreatedAt should be preserved")
	assert.True(t, loaded.LastUsed.Equal(lastUsed), "LastUsed should be preserved")
}
