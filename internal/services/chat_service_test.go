package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/core/llm"
	"github.com/markdave123-py/documind/internal/core/retrieval"
	"github.com/markdave123-py/documind/internal/models"
)

var testModels = []string{"m0", "m1", "m2"}

func newChatFixture(t *testing.T, ai *scriptedLLM) (*ChatService, *memDB) {
	t.Helper()
	db := newMemDB()
	pages := 12
	summary := "A report about rivers."
	db.addDoc(models.Document{
		ID: docRivers, UserID: "u1", FileName: "rivers.pdf", FileType: models.FileTypePDF,
		FileSize: 2 * 1024 * 1024, Status: models.StatusCompleted, PageCount: &pages, Summary: &summary,
	})
	db.addChunks(docRivers, "u1", "The Nile is long.", "The Amazon is wide.")

	log := zap.NewNop()
	var provider core.LLMProvider
	if ai != nil {
		provider = ai
	}
	svc := NewChatService(db, retrieval.NewRetriever(db, nil, log), provider, llm.NewModelChain(testModels, 0, log), 0, log)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc, db
}

func ask(q string) AnswerRequest {
	return AnswerRequest{DocID: docRivers, Messages: []core.Message{{Role: models.RoleUser, Content: q}}}
}

func TestAnswerPersistsExchange(t *testing.T) {
	ai := &scriptedLLM{replies: map[string]string{"m0": "It is long."}}
	svc, db := newChatFixture(t, ai)

	ans, err := svc.Answer(context.Background(), "u1", ask("How long is the Nile?"))
	require.NoError(t, err)
	assert.Equal(t, "It is long.", ans.Content)
	assert.Equal(t, "m0", ans.Model)
	assert.Equal(t, retrieval.MethodFullScan, ans.Method)

	require.Len(t, db.messages, 2)
	user, bot := db.messages[0], db.messages[1]
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "How long is the Nile?", user.Content)
	assert.Equal(t, models.RoleAssistant, bot.Role)
	assert.Equal(t, time.Second, bot.CreatedAt.Sub(user.CreatedAt))

	system := ai.systems[0]
	assert.Contains(t, system, `chatting about the document: "rivers.pdf"`)
	assert.Contains(t, system, "- Type: PDF")
	assert.Contains(t, system, "- Size: 2 MB")
	assert.Contains(t, system, "- Pages: 12")
	assert.Contains(t, system, "- Summary: A report about rivers.")
	assert.Contains(t, system, "DOCUMENT CONTENT:\nThe Nile is long.\n\nThe Amazon is wide.")
}

func TestAnswerDeduplicatesWithinWindow(t *testing.T) {
	ai := &scriptedLLM{replies: map[string]string{"m0": "ok"}}
	svc, db := newChatFixture(t, ai)
	ctx := context.Background()

	_, err := svc.Answer(ctx, "u1", ask("same question"))
	require.NoError(t, err)
	_, err = svc.Answer(ctx, "u1", ask("same question"))
	require.NoError(t, err)
	assert.Len(t, db.messages, 2)

	later := svc.now().Add(dedupWindow + time.Second)
	svc.now = func() time.Time { return later }
	_, err = svc.Answer(ctx, "u1", ask("same question"))
	require.NoError(t, err)
	assert.Len(t, db.messages, 4)
}

func TestAnswerSendsWholeConversation(t *testing.T) {
	ai := &scriptedLLM{replies: map[string]string{"m0": "ok"}}
	svc, db := newChatFixture(t, ai)

	req := AnswerRequest{DocID: docRivers, Messages: []core.Message{
		{Role: models.RoleAssistant, Content: "Hi! Ask me anything."},
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "answer"},
		{Role: models.RoleUser, Content: "second"},
	}}
	_, err := svc.Answer(context.Background(), "u1", req)
	require.NoError(t, err)

	assert.Equal(t, "first|answer|second", joinContents(ai.messages[0]))
	require.Len(t, db.messages, 2)
	assert.Equal(t, "second", db.messages[0].Content)
}

func TestAnswerFallsBackAcrossModels(t *testing.T) {
	quota := llm.NewModelError("m0", llm.KindQuota, errors.New("quota"))
	ai := &scriptedLLM{
		replies: map[string]string{"m1": "from m1"},
		errs:    map[string]error{"m0": quota},
	}
	svc, _ := newChatFixture(t, ai)

	ans, err := svc.Answer(context.Background(), "u1", ask("q"))
	require.NoError(t, err)
	assert.Equal(t, "from m1", ans.Content)
	assert.Equal(t, []string{"m0", "m1"}, ai.calls)
}

func TestAnswerModelFailures(t *testing.T) {
	tests := []struct {
		name    string
		errs    map[string]error
		kind    error
		message string
		calls   int
	}{
		{
			name: "chain exhausted",
			errs: map[string]error{
				"m0": llm.NewModelError("m0", llm.KindQuota, errors.New("quota m0")),
				"m1": llm.NewModelError("m1", llm.KindOverloaded, errors.New("busy m1")),
				"m2": llm.NewModelError("m2", llm.KindQuota, errors.New("quota m2")),
			},
			kind:    core.ErrRateLimited,
			message: "quota m2",
			calls:   3,
		},
		{
			name:    "every model answers blank",
			errs:    map[string]error{},
			kind:    core.ErrRateLimited,
			message: "model returned an empty response",
			calls:   3,
		},
		{
			name:    "non-retryable aborts",
			errs:    map[string]error{"m0": llm.NewModelError("m0", llm.KindOther, errors.New("bad request"))},
			kind:    core.ErrUnavailable,
			message: "bad request",
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := &scriptedLLM{errs: tt.errs}
			svc, db := newChatFixture(t, ai)

			_, err := svc.Answer(context.Background(), "u1", ask("q"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.message, err.Error())
			assert.Len(t, ai.calls, tt.calls)
			assert.Empty(t, db.messages)
		})
	}
}

func TestAnswerRejectsBadRequests(t *testing.T) {
	svc, db := newChatFixture(t, &scriptedLLM{})
	db.addDoc(models.Document{ID: docEmpty, UserID: "u1", FileName: "e.pdf"})
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  string
		req     AnswerRequest
		kind    error
		message string
	}{
		{"no user", "", ask("q"), core.ErrAuth, "Unauthorized"},
		{"no messages", "u1", AnswerRequest{DocID: docRivers}, core.ErrValidation, msgMessagesMissing},
		{"only assistant turns", "u1", AnswerRequest{DocID: docRivers, Messages: []core.Message{{Role: models.RoleAssistant, Content: "hi"}}}, core.ErrValidation, msgMessagesMissing},
		{"no doc id", "u1", AnswerRequest{Messages: ask("q").Messages}, core.ErrValidation, msgDocIDMissing},
		{"other owner", "u2", ask("q"), core.ErrNotFound, msgDocNotFound},
		{"malformed doc id", "u1", AnswerRequest{DocID: "not-a-uuid", Messages: ask("q").Messages}, core.ErrNotFound, msgDocNotFound},
		{"no chunks", "u1", AnswerRequest{DocID: docEmpty, Messages: ask("q").Messages}, core.ErrNotFound, msgNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Answer(ctx, tt.userID, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestAnswerKeepsReplyWhenSaveFails(t *testing.T) {
	ai := &scriptedLLM{replies: map[string]string{"m0": "still here"}}
	svc, db := newChatFixture(t, ai)
	db.insertErr = errors.New("db down")

	ans, err := svc.Answer(context.Background(), "u1", ask("q"))
	require.NoError(t, err)
	assert.Equal(t, "still here", ans.Content)
}

func TestAnswerWithoutProvider(t *testing.T) {
	svc, _ := newChatFixture(t, nil)

	_, err := svc.Answer(context.Background(), "u1", ask("q"))
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.Equal(t, msgAIUnavailable, err.Error())
}

func TestHistoryAndGroups(t *testing.T) {
	svc, db := newChatFixture(t, &scriptedLLM{})
	db.addDoc(models.Document{ID: docLakes, UserID: "u1", FileName: "lakes.docx"})
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db.messages = []models.ChatMessage{
		{ID: "a", DocumentID: docRivers, UserID: "u1", Role: models.RoleAssistant, Content: "A", CreatedAt: t0},
		{ID: "b", DocumentID: docRivers, UserID: "u1", Role: models.RoleUser, Content: "Q", CreatedAt: t0},
		{ID: "c", DocumentID: docRivers, UserID: "u1", Role: models.RoleUser, Content: "Q", CreatedAt: t0},
		{ID: "d", DocumentID: docLakes, UserID: "u1", Role: models.RoleUser, Content: "L", CreatedAt: t0.Add(time.Hour)},
		{ID: "e", DocumentID: docGone, UserID: "u1", Role: models.RoleUser, Content: "X", CreatedAt: t0.Add(time.Minute)},
		{ID: "f", DocumentID: docRivers, UserID: "u2", Role: models.RoleUser, Content: "other", CreatedAt: t0},
	}
	ctx := context.Background()

	hist, err := svc.History(ctx, "u1", docRivers)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "b", hist[0].ID)
	assert.Equal(t, "a", hist[1].ID)

	groups, err := svc.AllHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, "lakes.docx", groups[0].DocumentName)
	assert.Equal(t, "Unknown Document", groups[1].DocumentName)
	assert.Equal(t, "rivers.pdf", groups[2].DocumentName)

	require.NoError(t, svc.ClearHistory(ctx, "u1", docRivers))
	hist, err = svc.History(ctx, "u1", docRivers)
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.Len(t, db.messages, 3)
}

func TestSaveMessage(t *testing.T) {
	svc, db := newChatFixture(t, &scriptedLLM{})
	ctx := context.Background()

	msg, err := svc.SaveMessage(ctx, "u1", docRivers, models.RoleAssistant, "hello")
	require.NoError(t, err)
	assert.Equal(t, docRivers, msg.DocumentID)
	assert.Len(t, db.messages, 1)

	_, err = svc.SaveMessage(ctx, "u1", docRivers, "system", "x")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.SaveMessage(ctx, "u2", docRivers, models.RoleUser, "x")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMalformedDocIDIsNotFound(t *testing.T) {
	svc, db := newChatFixture(t, &scriptedLLM{})
	ctx := context.Background()

	_, err := svc.History(ctx, "u1", "abc")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, svc.ClearHistory(ctx, "u1", "abc"), core.ErrNotFound)
	_, err = svc.SaveMessage(ctx, "u1", "abc", models.RoleUser, "hi")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, msgDocNotFound, err.Error())
	assert.Empty(t, db.messages)
}
