package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"vocabcue/internal/database"
	"vocabcue/internal/models"
	"vocabcue/internal/repository"
	"vocabcue/internal/validation"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func setupCollectorDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "collector.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), nil))
	return db
}

func testConsent() models.Consent {
	return models.Consent{
		UserID:      "p-1",
		Name:        "Kim Minji",
		Email:       "minji@example.com",
		Group:       "keyword",
		ConsentedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRecordConsentSendsReceipt(t *testing.T) {
	db := setupCollectorDB(t)
	ses := &fakeSES{}
	svc := NewCollectorService(db, NewEmailServiceWithClient(ses, "study@example.com", "Vocabulary Study", nil), nil)
	ctx := context.Background()

	id, err := svc.RecordConsent(ctx, testConsent())
	require.NoError(t, err)
	assert.Positive(t, id)

	require.Len(t, ses.inputs, 1)
	in := ses.inputs[0]
	assert.Equal(t, []string{"minji@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Vocabulary Study <study@example.com>", *in.FromEmailAddress)
	assert.Contains(t, *in.Content.Simple.Body.Text.Data, "p-1")
	assert.Contains(t, *in.Content.Simple.Body.Html.Data, "Kim Minji")

	stored, err := svc.consents.GetByUserID(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, stored.ReceiptSent)

	// a retried post is not stored twice
	again, err := svc.RecordConsent(ctx, testConsent())
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, ses.inputs, 1)
}

func TestRecordConsentEmailFailureKeepsConsent(t *testing.T) {
	db := setupCollectorDB(t)
	ses := &fakeSES{err: errors.New("throttled")}
	svc := NewCollectorService(db, NewEmailServiceWithClient(ses, "study@example.com", "", nil), nil)
	ctx := context.Background()

	_, err := svc.RecordConsent(ctx, testConsent())
	require.NoError(t, err)

	stored, err := svc.consents.GetByUserID(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, stored.ReceiptSent)

	ses.err = nil
	sent, err := svc.ResendReceipts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	stored, err = svc.consents.GetByUserID(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, stored.ReceiptSent)
}

func TestRecordConsentConcurrentDuplicates(t *testing.T) {
	db := setupCollectorDB(t)
	svc := NewCollectorService(db, nil, nil)
	ctx := context.Background()

	const posts = 8
	ids := make([]int64, posts)
	var g errgroup.Group
	for i := range posts {
		g.Go(func() error {
			id, err := svc.RecordConsent(ctx, testConsent())
			ids[i] = id
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	consents, err := repository.NewConsentRepository(db).List(ctx)
	require.NoError(t, err)
	assert.Len(t, consents, 1)
}

func TestRecordConsentInvalid(t *testing.T) {
	svc := NewCollectorService(setupCollectorDB(t), nil, nil)

	c := testConsent()
	c.Email = "not-an-email"
	_, err := svc.RecordConsent(context.Background(), c)

	var verr validation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)
}

func TestRecordResponseAndStats(t *testing.T) {
	svc := NewCollectorService(setupCollectorDB(t), nil, nil)
	ctx := context.Background()
	entry := time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)
	answer := "사과"

	_, err := svc.RecordResponse(ctx, models.ResponseEvent{
		UserID: "p-1", Group: "keyword", Word: "apple", Round: 1, PageType: "recognition",
		EntryTime: entry, ExitTime: entry.Add(12 * time.Second), Duration: 12, Response: &answer,
	})
	require.NoError(t, err)

	_, err = svc.RecordResponse(ctx, models.ResponseEvent{
		UserID: "p-1", Group: "keyword", PageType: models.PageTypeFinalSummary,
		Summary: map[string]int{"recognition": 1},
	})
	require.NoError(t, err)

	_, err = svc.RecordResponse(ctx, models.ResponseEvent{UserID: "p-1", Group: "keyword", Word: "apple", PageType: "review"})
	assert.Error(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"recognition": 1, "final_summary": 1}, stats)
}

func TestExportFormats(t *testing.T) {
	db := setupCollectorDB(t)
	collector := NewCollectorService(db, nil, nil)
	export := NewExportService(db, nil)
	ctx := context.Background()

	_, err := collector.RecordConsent(ctx, testConsent())
	require.NoError(t, err)
	entry := time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)
	_, err = collector.RecordResponse(ctx, models.ResponseEvent{
		UserID: "p-1", Group: "keyword", Word: "apple", PageType: "survey",
		EntryTime: entry, ExitTime: entry.Add(3 * time.Second), Duration: 3,
		Ratings: map[string]int{"familiarity": 4, "cue_helpfulness": 2},
	})
	require.NoError(t, err)

	var js bytes.Buffer
	require.NoError(t, export.WriteJSON(ctx, &js, models.ResponseFilter{}))
	var data ExportData
	require.NoError(t, json.Unmarshal(js.Bytes(), &data))
	assert.Len(t, data.Consents, 1)
	require.Len(t, data.Responses, 1)
	assert.Equal(t, 4, data.Responses[0].Ratings["familiarity"])

	var buf bytes.Buffer
	require.NoError(t, export.WriteResponsesCSV(ctx, &buf, models.ResponseFilter{Group: "keyword"}))
	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, responseColumns, rows[0])
	assert.Equal(t, "apple", rows[1][3])
	assert.Equal(t, "2026-03-01T09:01:00Z", rows[1][6])
	assert.Equal(t, "cue_helpfulness=2;familiarity=4", rows[1][10])

	buf.Reset()
	require.NoError(t, export.WriteResponsesCSV(ctx, &buf, models.ResponseFilter{Group: "verbal"}))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	buf.Reset()
	require.NoError(t, export.WriteConsentsCSV(ctx, &buf))
	assert.Contains(t, buf.String(), "minji@example.com")

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, export.ExportToFile(ctx, path))
}

func TestDisabledEmailService(t *testing.T) {
	svc, err := NewEmailService(context.Background(), "us-east-1", "", "", nil)
	require.NoError(t, err)
	assert.False(t, svc.IsEnabled())
	assert.NoError(t, svc.SendConsentReceipt(context.Background(), testConsent()))
}
