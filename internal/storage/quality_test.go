package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

func TestQualityRepositories(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Quality Repositories Suite")
}

var _ = Describe("QualityIssueRepository", func() {
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

	Describe("CountBySeverity", func() {
		It("fills in zero counts for severities with no open issues", func() {
			rows := sqlmock.NewRows([]string{"severity", "count"}).
				AddRow("critical", 2).
				AddRow("medium", 5)

			mock.ExpectQuery(`SELECT severity, count\(\*\) FROM quality_issues`).
				WithArgs("proj-1").
				WillReturnRows(rows)

			counts, err := store.QualityIssues.CountBySeverity(ctx, "proj-1")

			Expect(err).ToNot(HaveOccurred())
			Expect(counts[models.SeverityCritical]).To(Equal(2))
			Expect(counts[models.SeverityMedium]).To(Equal(5))
			Expect(counts[models.SeverityHigh]).To(Equal(0))
			Expect(counts[models.SeverityLow]).To(Equal(0))
		})
	})
})

var _ = Describe("DebtSnapshotRepository", func() {
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

	Describe("Latest", func() {
		It("returns nil with no error when no snapshot exists yet", func() {
			mock.ExpectQuery(`SELECT \* FROM debt_snapshots`).
				WithArgs("proj-1").
				WillReturnError(sql.ErrNoRows)

			got, err := store.DebtSnapshots.Latest(ctx, "proj-1")

			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("returns the most recent snapshot", func() {
			rows := sqlmock.NewRows([]string{
				"snapshot_id", "project_id", "overall_score", "code_quality_score", "test_coverage_score",
				"documentation_score", "dependency_health_score", "todo_health_score",
				"critical_count", "high_count", "medium_count", "low_count", "estimated_days_to_fix", "created_at",
			}).AddRow("snap-1", "proj-1", 72.5, 80, 60, 50, 90, 70, 1, 2, 3, 4, 5.5, now)

			mock.ExpectQuery(`SELECT \* FROM debt_snapshots`).
				WithArgs("proj-1").
				WillReturnRows(rows)

			got, err := store.DebtSnapshots.Latest(ctx, "proj-1")

			Expect(err).ToNot(HaveOccurred())
			Expect(got.OverallScore).To(Equal(72.5))
		})
	})
})
