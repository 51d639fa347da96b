package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/llm"
	"github.com/fyerfyer/advisor-rag/internal/models"
	"github.com/fyerfyer/advisor-rag/internal/repository"
	"github.com/fyerfyer/advisor-rag/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestArchiver(t *testing.T) *Archiver {
	dsn := fmt.Sprintf("file:memdb_archive_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Conversation{}, &models.ConversationTurn{}))

	return NewArchiver(repository.NewConversationRepositoryWithDB(db), logger.Discard())
}

func testTranscript(id string) Transcript {
	ended := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	return Transcript{
		ID:        id,
		StartedAt: ended.Add(-10 * time.Minute),
		EndedAt:   ended,
		Turns: []llm.Message{
			{Role: llm.RoleUser, Content: "I want to save for retirement"},
			{Role: llm.RoleAssistant, Content: "Product A is a good fit."},
		},
	}
}

func TestArchiveAndExport(t *testing.T) {
	a := newTestArchiver(t)
	ctx := context.Background()

	conv, err := a.Archive(ctx, testTranscript("conv-1"), Profile{Name: "Ana", Age: "34", Recommendation: "Product A"})
	require.NoError(t, err)
	assert.Equal(t, 2, conv.TurnCount)
	assert.Contains(t, conv.Transcript, "User: I want to save for retirement\nAssistant: Product A is a good fit.")
	assert.JSONEq(t, `{"name":"Ana","age":"34","gender":"","employment":"","financial_goals":"","contact":"","recommendation":"Product A"}`,
		string(conv.Profile))

	_, err = a.Archive(ctx, testTranscript("conv-1"), Profile{})
	assert.ErrorIs(t, err, models.ErrConversationExists)

	convs, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	path := filepath.Join(t.TempDir(), "out", "conversations.csv")
	require.NoError(t, ExportFile(path, convs))
	require.NoError(t, ExportFile(path, convs))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, ExportHeader, records[0])
	assert.Equal(t, "Ana", records[1][0])
	assert.Equal(t, "Product A", records[1][6])
	assert.Equal(t, "2024-05-01 09:30:00", records[1][8])
	assert.Equal(t, records[1], records[2])
}
