package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

func TestNoteRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "NoteRepository Suite")
}

func newMockStore(t GinkgoTInterface) (*Store, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())
	db := sqlx.NewDb(mockDB, "sqlmock")
	s := newStore(db, zap.NewNop())
	return s, mock, func() { mockDB.Close() }
}

var _ = Describe("NoteRepository", func() {
	var (
		store  *Store
		mock   sqlmock.Sqlmock
		closer func()
		ctx    context.Context
		note   *models.Note
		now    time.Time
	)

	BeforeEach(func() {
		store, mock, closer = newMockStore(GinkgoT())
		ctx = context.Background()
		now = time.Now()
		note = &models.Note{
			NoteID:    "note-1",
			ProjectID: "proj-1",
			Category:  models.NoteTip,
			Title:     "Use context deadlines",
			Content:   "Every blocking call should take a context",
			Importance: 4,
		}
	})

	AfterEach(func() { closer() })

	Describe("Create", func() {
		It("inserts and scans back created_at", func() {
			mock.ExpectQuery(`INSERT INTO notes`).
				WithArgs(note.NoteID, note.ProjectID, note.SessionID, note.Category, note.Title, note.Content,
					note.Importance, note.RelatedCode, sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

			err := store.Notes.Create(ctx, note)

			Expect(err).ToNot(HaveOccurred())
			Expect(note.CreatedAt).To(Equal(now))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("Resolve", func() {
		It("marks the note resolved", func() {
			resolvedNote := "fixed in commit abc"
			mock.ExpectExec(`UPDATE notes SET is_resolved`).
				WithArgs(note.NoteID, sqlmock.AnyArg(), &resolvedNote).
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := store.Notes.Resolve(ctx, note.NoteID, &resolvedNote)

			Expect(err).ToNot(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("ByID", func() {
		It("returns a not-found error when no row matches", func() {
			mock.ExpectQuery(`SELECT (.+) FROM notes WHERE note_id`).
				WithArgs(note.NoteID).
				WillReturnError(sql.ErrNoRows)

			_, err := store.Notes.ByID(ctx, note.NoteID)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("List", func() {
		It("orders by importance desc then created_at desc", func() {
			rows := sqlmock.NewRows([]string{
				"note_id", "project_id", "session_id", "category", "title", "content", "importance",
				"related_code", "related_entities", "tags", "is_resolved", "resolved_at", "resolved_note", "created_at",
			}).AddRow("note-2", "proj-1", nil, "pitfall", "Watch out", "body", 5,
				nil, []byte("[]"), []byte("[]"), false, nil, nil, now)

			mock.ExpectQuery(`SELECT \* FROM notes WHERE project_id=\$1 AND importance>=\$2\s+ORDER BY importance DESC, created_at DESC`).
				WithArgs("proj-1", 1).
				WillReturnRows(rows)

			got, err := store.Notes.List(ctx, "proj-1", nil, 1, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Importance).To(Equal(5))
		})
	})
})
