package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/logger"
	"github.com/pagelens/pagelens/internal/models"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	st, err := OpenGorm("sqlite", dsn, logger.NewNop())
	require.NoError(t, err)
	return st
}

func testDocument(id string) *models.Document {
	return &models.Document{
		ID:               id,
		OriginalFilename: id + ".pdf",
		TotalPages:       10,
		Location:         "/uploads/" + id + ".pdf",
	}
}

func TestOpenGormRejectsUnknownDriver(t *testing.T) {
	_, err := OpenGorm("oracle", "dsn", logger.NewNop())
	assert.Error(t, err)
}

func TestDocumentLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ok, err := st.Exists(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = st.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Upsert(ctx, testDocument("d1")))

	ok, err = st.Exists(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)

	doc, err := st.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, 10, doc.TotalPages)

	require.NoError(t, st.SetSelection(ctx, "d1", 4))
	require.NoError(t, st.SetStatus(ctx, "d1", models.StatusProcessing, 2))

	doc, err = st.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, doc.Status)
	assert.Equal(t, 4, doc.SelectedPages)
	assert.Equal(t, 2, doc.ProcessedPages)

	require.NoError(t, st.SetFailure(ctx, "d1", "generator unreachable"))
	doc, err = st.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, "generator unreachable", doc.ErrorDetails)
	// The processed count stays at what was last durably written.
	assert.Equal(t, 2, doc.ProcessedPages)
}

func TestUpsertResetsState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Upsert(ctx, testDocument("d2")))
	require.NoError(t, st.SetSelection(ctx, "d2", 5))
	require.NoError(t, st.SetFailure(ctx, "d2", "boom"))

	// Re-submission starts the document fresh.
	resubmitted := testDocument("d2")
	resubmitted.TotalPages = 12
	require.NoError(t, st.Upsert(ctx, resubmitted))

	doc, err := st.GetDocument(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, 12, doc.TotalPages)
	assert.Zero(t, doc.SelectedPages)
	assert.Zero(t, doc.ProcessedPages)
	assert.Empty(t, doc.ErrorDetails)
}

func TestArtifactPutIsUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, testDocument("d3")))

	_, err := st.GetArtifact(ctx, "d3", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Put(ctx, &models.Artifact{
		DocumentID: "d3", PageNumber: 1, PageTag: "content",
		Body: "first version", Summary: "[page 1] first version",
	}))
	require.NoError(t, st.Put(ctx, &models.Artifact{
		DocumentID: "d3", PageNumber: 1, PageTag: "exercise",
		Body: "second version", Summary: "[page 1] second version",
	}))

	a, err := st.GetArtifact(ctx, "d3", 1)
	require.NoError(t, err)
	assert.Equal(t, "second version", a.Body)
	assert.Equal(t, "exercise", a.PageTag)

	all, err := st.GetAll(ctx, "d3")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestArtifactsAreScopedByDocument(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, &models.Artifact{
		DocumentID: "a", PageNumber: 1, PageTag: "content", Body: "doc a",
	}))
	require.NoError(t, st.Put(ctx, &models.Artifact{
		DocumentID: "b", PageNumber: 1, PageTag: "content", Body: "doc b",
	}))

	a, err := st.GetArtifact(ctx, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, "doc a", a.Body)

	all, err := st.GetAll(ctx, "b")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "doc b", all[0].Body)
}

func TestGetAllOrdersByPage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for _, page := range []int{3, 1, 2} {
		require.NoError(t, st.Put(ctx, &models.Artifact{
			DocumentID: "d4", PageNumber: page, PageTag: "content", Body: "b",
		}))
	}

	all, err := st.GetAll(ctx, "d4")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].PageNumber)
	assert.Equal(t, 2, all[1].PageNumber)
	assert.Equal(t, 3, all[2].PageNumber)
}

func TestRangeSummariesWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for page := 1; page <= 6; page++ {
		a := &models.Artifact{
			DocumentID: "d5", PageNumber: page, PageTag: "content", Body: "b",
			Summary: "s" + string(rune('0'+page)),
		}
		if page == 4 {
			a.Summary = "" // pages may carry no summary
		}
		require.NoError(t, st.Put(ctx, a))
	}

	got, err := st.RangeSummaries(ctx, "d5", 6, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s5"}, got)

	// Window clamps at page 1.
	got, err = st.RangeSummaries(ctx, "d5", 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, got)

	got, err = st.RangeSummaries(ctx, "d5", 1, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteReturnsRemovedCount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for page := 1; page <= 3; page++ {
		require.NoError(t, st.Put(ctx, &models.Artifact{
			DocumentID: "d6", PageNumber: page, PageTag: "content", Body: "b",
		}))
	}

	removed, err := st.Delete(ctx, "d6", []int{2, 3, 9})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = st.Delete(ctx, "d6", nil)
	require.NoError(t, err)
	assert.Zero(t, removed)

	all, err := st.GetAll(ctx, "d6")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 1, all[0].PageNumber)
}
