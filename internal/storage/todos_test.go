package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

func TestTodoRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TodoRepository Suite")
}

var _ = Describe("TodoRepository", func() {
	var (
		store  *Store
		mock   sqlmock.Sqlmock
		closer func()
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		store, mock, closer = newMockStore(GinkgoT())
		ctx = context.Background()
		now = time.Now()
	})

	AfterEach(func() { closer() })

	Describe("Complete", func() {
		It("marks progress 100 and stamps completed_at", func() {
			note := "shipped"
			mock.ExpectExec(`UPDATE todos SET status = 'completed'`).
				WithArgs("todo-1", sqlmock.AnyArg(), &note).
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := store.Todos.Complete(ctx, "todo-1", &note)

			Expect(err).ToNot(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("NextActionable", func() {
		It("returns pending todos whose dependencies are all completed", func() {
			rows := sqlmock.NewRows([]string{
				"todo_id", "project_id", "session_id", "title", "description", "category", "priority",
				"estimated_difficulty", "estimated_hours", "status", "progress", "depends_on",
				"completed_at", "completion_note", "created_at",
			}).AddRow("todo-2", "proj-1", nil, "Add index", nil, "refactor", 8, 2, nil,
				"pending", 0, []byte("[]"), nil, nil, now)

			mock.ExpectQuery(`SELECT t\.\* FROM todos t`).
				WithArgs("proj-1", 5).
				WillReturnRows(rows)

			got, err := store.Todos.NextActionable(ctx, "proj-1", 5)

			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Priority).To(Equal(8))
		})
	})

	Describe("DependsOnChain", func() {
		It("decodes the stored dependency list", func() {
			mock.ExpectQuery(`SELECT depends_on FROM todos WHERE todo_id = \$1`).
				WithArgs("todo-3").
				WillReturnRows(sqlmock.NewRows([]string{"depends_on"}).AddRow([]byte(`["todo-1","todo-2"]`)))

			deps, err := store.Todos.DependsOnChain(ctx, "todo-3")

			Expect(err).ToNot(HaveOccurred())
			Expect(deps).To(ConsistOf("todo-1", "todo-2"))
		})
	})

	It("derives Blocks as the reverse of DependsOn", func() {
		all := []*models.Todo{
			{TodoID: "a"},
			{TodoID: "b", DependsOn: []string{"a"}},
			{TodoID: "c", DependsOn: []string{"a"}},
		}
		Expect(models.Blocks(all, "a")).To(ConsistOf("b", "c"))
	})
})
