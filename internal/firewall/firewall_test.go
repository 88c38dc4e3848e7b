package firewall

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

func TestFirewall(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Firewall Suite")
}

func newMockStore(t GinkgoTInterface) (*Firewall, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())
	db := sqlx.NewDb(mockDB, "sqlmock")
	logrusLog := logrus.New()
	logrusLog.SetOutput(io.Discard)
	f := New(storage.NewWithDB(db, zap.NewNop()), logrusLog)
	return f, mock, func() { mockDB.Close() }
}

var _ = Describe("Fingerprint", func() {
	It("is deterministic regardless of map key insertion order", func() {
		a := map[string]any{"b": 1, "a": "x"}
		b := map[string]any{"a": "x", "b": 1}
		Expect(Fingerprint("nil_pointer", a)).To(Equal(Fingerprint("nil_pointer", b)))
	})

	It("changes when the error_type changes", func() {
		pattern := map[string]any{"a": 1}
		Expect(Fingerprint("type_a", pattern)).ToNot(Equal(Fingerprint("type_b", pattern)))
	})

	It("produces a 64-character hex digest", func() {
		Expect(Fingerprint("t", map[string]any{})).To(HaveLen(64))
	})
})

var _ = Describe("matchConfidence", func() {
	It("scores an exact match across every key as 1.0", func() {
		pattern := map[string]any{"device_name": "iPhone 15", "os_version": "17.0"}
		params := map[string]any{"device_name": "iPhone 15", "os_version": "17.0"}
		Expect(matchConfidence(pattern, params)).To(Equal(1.0))
	})

	It("scores a case-insensitive string match as 0.8 per key", func() {
		pattern := map[string]any{"name": "Foo"}
		params := map[string]any{"name": "foo"}
		Expect(matchConfidence(pattern, params)).To(Equal(0.8))
	})

	It("drops below the candidate threshold when the params diverge", func() {
		pattern := map[string]any{"device_name": "iPhone 15", "os_version": "17.0"}
		params := map[string]any{"device_name": "iPhone 15 Pro", "os_version": "17.2"}
		Expect(matchConfidence(pattern, params)).To(BeNumerically("<=", 0.5))
	})

	It("returns zero confidence for an empty pattern", func() {
		Expect(matchConfidence(map[string]any{}, map[string]any{"a": 1})).To(Equal(0.0))
	})
})

var _ = Describe("Firewall.CheckOperation", func() {
	var (
		fw     *Firewall
		mock   sqlmock.Sqlmock
		closer func()
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		fw, mock, closer = newMockStore(GinkgoT())
		ctx = context.Background()
		now = time.Now()
	})

	AfterEach(func() { closer() })

	errorRecordRows := func(blockLevel models.BlockLevel, pattern []byte, lastOccurred time.Time) *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "error_id", "error_type", "error_scene", "error_pattern", "error_message",
			"solution", "solution_confidence", "block_level", "auto_fix",
			"occurrence_count", "blocked_count", "last_occurred_at", "created_at",
		}).AddRow(int64(1), "fp-1", "ios_build", "before_build", pattern, "boom",
			nil, 0.0, blockLevel, false, 1, 0, lastOccurred, lastOccurred)
	}

	It("blocks an exact-match high-confidence candidate and logs+counts the block", func() {
		pattern := []byte(`{"device_name":"iPhone 15","os_version":"17.0"}`)
		mock.ExpectQuery(`SELECT \* FROM error_records WHERE error_type`).
			WithArgs("ios_build").
			WillReturnRows(errorRecordRows(models.BlockLevelBlock, pattern, now))
		mock.ExpectQuery(`INSERT INTO intercept_logs`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))
		mock.ExpectExec(`UPDATE error_records SET blocked_count`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, err := fw.CheckOperation(ctx, "ios_build",
			map[string]any{"device_name": "iPhone 15", "os_version": "17.0"}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.ShouldBlock).To(BeTrue())
		Expect(result.RiskLevel).To(Equal("high"))
		Expect(result.MatchConfidence).To(Equal(1.0))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("does not block when the params diverge enough to drop below threshold", func() {
		pattern := []byte(`{"device_name":"iPhone 15","os_version":"17.0"}`)
		mock.ExpectQuery(`SELECT \* FROM error_records WHERE error_type`).
			WithArgs("ios_build").
			WillReturnRows(errorRecordRows(models.BlockLevelBlock, pattern, now))

		result, err := fw.CheckOperation(ctx, "ios_build",
			map[string]any{"device_name": "iPhone 15 Pro", "os_version": "17.2"}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.ShouldBlock).To(BeFalse())
		Expect(result.RiskLevel).To(Equal("low"))
	})

	It("ignores candidates with block_level none", func() {
		pattern := []byte(`{"a":"b"}`)
		mock.ExpectQuery(`SELECT \* FROM error_records WHERE error_type`).
			WithArgs("x").
			WillReturnRows(errorRecordRows(models.BlockLevelNone, pattern, now))

		result, err := fw.CheckOperation(ctx, "x", map[string]any{"a": "b"}, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(result.ShouldBlock).To(BeFalse())
		Expect(result.ShouldWarn).To(BeFalse())
	})
})

var _ = Describe("Firewall.RecordError", func() {
	var (
		fw     *Firewall
		mock   sqlmock.Sqlmock
		closer func()
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		fw, mock, closer = newMockStore(GinkgoT())
		ctx = context.Background()
		now = time.Now()
	})

	AfterEach(func() { closer() })

	It("reports is_new=false when the fingerprint already exists", func() {
		errorID := Fingerprint("nil_pointer", map[string]any{"a": 1})
		mock.ExpectQuery(`SELECT \* FROM error_records WHERE error_id`).
			WithArgs(errorID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "error_id", "error_type", "error_scene", "error_pattern", "error_message",
				"solution", "solution_confidence", "block_level", "auto_fix",
				"occurrence_count", "blocked_count", "last_occurred_at", "created_at",
			}).AddRow(int64(1), errorID, "nil_pointer", "scene", []byte(`{"a":1}`), "msg",
				nil, 0.0, models.BlockLevelNone, false, 4, 0, now, now))
		mock.ExpectQuery(`INSERT INTO error_records`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "occurrence_count", "created_at", "last_occurred_at"}).
				AddRow(int64(1), 5, now, now))

		result, err := fw.RecordError(ctx, RecordInput{
			ErrorType:    "nil_pointer",
			ErrorScene:   "scene",
			ErrorPattern: map[string]any{"a": 1},
			ErrorMessage: "msg",
			BlockLevel:   models.BlockLevelNone,
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(result.IsNew).To(BeFalse())
		Expect(result.ErrorID).To(Equal(errorID))
	})
})
