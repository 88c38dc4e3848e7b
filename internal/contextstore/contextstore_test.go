package contextstore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/models"
	"github.com/jordigilh/devctx-mcp/internal/storage"
)

func TestContextStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ContextStore Suite")
}

func newMockStore(t GinkgoTInterface) (*Store, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())
	db := sqlx.NewDb(mockDB, "sqlmock")
	logrusLog := logrus.New()
	logrusLog.SetOutput(io.Discard)
	s := New(storage.NewWithDB(db, zap.NewNop()), logrusLog)
	return s, mock, func() { mockDB.Close() }
}

var _ = Describe("Store.Supersede", func() {
	var (
		store  *Store
		mock   sqlmock.Sqlmock
		closer func()
		ctx    context.Context
	)

	BeforeEach(func() {
		store, mock, closer = newMockStore(GinkgoT())
		ctx = context.Background()
	})

	AfterEach(func() { closer() })

	It("rejects a decision superseding itself", func() {
		err := store.Supersede(ctx, "d1", "d1")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a chain that would cycle back to the original decision", func() {
		newID := "d2"
		rows := sqlmock.NewRows([]string{
			"decision_id", "project_id", "session_id", "category", "title", "description",
			"reasoning", "alternatives", "trade_offs", "impact_scope", "status", "superseded_by", "created_at",
		}).AddRow(newID, "proj-1", nil, "architecture", "t", nil, "r", []byte("[]"), []byte("{}"), nil,
			string(models.DecisionSuperseded), "d1", time.Now())

		mock.ExpectQuery(`SELECT \* FROM decisions WHERE decision_id = \$1`).
			WithArgs(newID).
			WillReturnRows(rows)

		err := store.Supersede(ctx, "d1", newID)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Store.checkNoCycle", func() {
	var (
		store  *Store
		mock   sqlmock.Sqlmock
		closer func()
		ctx    context.Context
	)

	BeforeEach(func() {
		store, mock, closer = newMockStore(GinkgoT())
		ctx = context.Background()
	})

	AfterEach(func() { closer() })

	It("rejects a depends_on that would make the new todo depend on itself transitively", func() {
		mock.ExpectQuery(`SELECT depends_on FROM todos WHERE todo_id = \$1`).
			WithArgs("todo-1").
			WillReturnRows(sqlmock.NewRows([]string{"depends_on"}).AddRow([]byte(`["new-todo"]`)))

		err := store.checkNoCycle(ctx, "new-todo", []string{"todo-1"})
		Expect(err).To(HaveOccurred())
	})

	It("accepts a dependency chain with no cycle", func() {
		mock.ExpectQuery(`SELECT depends_on FROM todos WHERE todo_id = \$1`).
			WithArgs("todo-1").
			WillReturnRows(sqlmock.NewRows([]string{"depends_on"}).AddRow([]byte(`[]`)))

		err := store.checkNoCycle(ctx, "new-todo", []string{"todo-1"})
		Expect(err).ToNot(HaveOccurred())
	})
})

var _ = Describe("Store.EndSession", func() {
	It("is idempotent once a session already has an end_time", func() {
		store, mock, closer := newMockStore(GinkgoT())
		defer closer()
		ctx := context.Background()

		endedAt := time.Now()
		rows := sqlmock.NewRows([]string{
			"session_id", "project_id", "start_time", "end_time", "duration_minutes", "goals",
			"achievements", "next_steps", "files_modified", "issues_encountered", "context_summary",
		}).AddRow("sess-1", "proj-1", time.Now(), endedAt, 30, "goals", "done", nil,
			[]byte("[]"), []byte("[]"), nil)

		mock.ExpectQuery(`FROM sessions WHERE session_id = \$1`).
			WithArgs("sess-1").
			WillReturnRows(rows)

		got, err := store.EndSession(ctx, "sess-1", "ignored", nil, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(got.EndTime).ToNot(BeNil())
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})
})
