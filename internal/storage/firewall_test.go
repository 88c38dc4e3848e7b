package storage

import (
	"context"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

var _ = Describe("ErrorRecordRepository", func() {
	var (
		store  *Store
		mock   sqlmock.Sqlmock
		closer func()
		ctx    context.Context
		now    time.Time
		rec    *models.ErrorRecord
	)

	BeforeEach(func() {
		store, mock, closer = newMockStore(GinkgoT())
		ctx = context.Background()
		now = time.Now()
		rec = &models.ErrorRecord{
			ErrorID:    "fp-abc123",
			ErrorType:  "nil_pointer",
			ErrorScene: "before_write",
			ErrorPattern: map[string]any{
				"message": "nil pointer dereference",
			},
			ErrorMessage:       "nil pointer dereference",
			SolutionConfidence: 0.8,
			BlockLevel:         models.BlockLevelWarning,
		}
	})

	AfterEach(func() { closer() })

	Describe("Upsert", func() {
		It("scans back the id and occurrence_count the upsert returns", func() {
			mock.ExpectQuery(`INSERT INTO error_records`).
				WithArgs(rec.ErrorID, rec.ErrorType, rec.ErrorScene, sqlmock.AnyArg(), rec.ErrorMessage,
					rec.Solution, rec.SolutionConfidence, rec.BlockLevel, rec.AutoFix).
				WillReturnRows(sqlmock.NewRows([]string{"id", "occurrence_count", "created_at", "last_occurred_at"}).
					AddRow(int64(7), 3, now, now))

			err := store.ErrorRecords.Upsert(ctx, rec)

			Expect(err).ToNot(HaveOccurred())
			Expect(rec.ID).To(Equal(int64(7)))
			Expect(rec.OccurrenceCount).To(Equal(3))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	})

	Describe("Stats", func() {
		It("sums occurrence and blocked counts across all records", func() {
			mock.ExpectQuery(`SELECT coalesce\(sum\(occurrence_count\)`).
				WillReturnRows(sqlmock.NewRows([]string{"sum", "sum"}).AddRow(42, 5))

			total, blocked, err := store.ErrorRecords.Stats(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(total).To(Equal(42))
			Expect(blocked).To(Equal(5))
		})
	})
})

var _ = Describe("InterceptLogRepository", func() {
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

	Describe("Create", func() {
		It("records an intercept decision", func() {
			log := &models.InterceptLog{
				ErrorRecordID:   7,
				InterceptType:   models.InterceptBefore,
				InterceptAction: models.InterceptWarned,
				OperationType:   "write_file",
				MatchConfidence: 0.91,
			}

			mock.ExpectQuery(`INSERT INTO intercept_logs`).
				WithArgs(log.ErrorRecordID, log.InterceptType, log.InterceptAction, log.OperationType,
					sqlmock.AnyArg(), log.MatchConfidence, log.SessionID).
				WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

			err := store.InterceptLogs.Create(ctx, log)

			Expect(err).ToNot(HaveOccurred())
			Expect(log.ID).To(Equal(int64(1)))
		})
	})
})
