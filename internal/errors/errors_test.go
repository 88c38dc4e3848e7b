package errors

import (
	"errors"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Structured Errors Suite")
}

var _ = Describe("AppError", func() {
	Context("basic error creation", func() {
		It("should create error with correct properties", func() {
			err := New(ErrorTypeValidation, "test message")

			Expect(err.Type).To(Equal(ErrorTypeValidation))
			Expect(err.Message).To(Equal("test message"))
			Expect(err.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(err.Details).To(BeEmpty())
			Expect(err.Cause).To(BeNil())
		})

		It("should implement the error interface", func() {
			err := New(ErrorTypeValidation, "test message")
			Expect(err.Error()).To(Equal("validation: test message"))
		})

		It("should include details in the error string when present", func() {
			err := New(ErrorTypeValidation, "test message").WithDetails("extra info")
			Expect(err.Error()).To(Equal("validation: test message (extra info)"))
		})
	})

	Context("error wrapping", func() {
		It("should wrap an underlying error", func() {
			originalErr := errors.New("original error")
			wrapped := Wrap(originalErr, ErrorTypeDatabase, "operation failed")

			Expect(wrapped.Type).To(Equal(ErrorTypeDatabase))
			Expect(wrapped.Cause).To(Equal(originalErr))
			Expect(wrapped.Unwrap()).To(Equal(originalErr))
		})

		It("should format a wrapped error with arguments", func() {
			originalErr := errors.New("connection refused")
			wrapped := Wrapf(originalErr, ErrorTypeNetwork, "failed to connect to %s:%d", "localhost", 5432)

			Expect(wrapped.Message).To(Equal("failed to connect to localhost:5432"))
			Expect(wrapped.Cause).To(Equal(originalErr))
		})
	})

	Context("HTTP status code mapping", func() {
		It("should map every error type to its status code", func() {
			cases := map[ErrorType]int{
				ErrorTypeValidation:  http.StatusBadRequest,
				ErrorTypeAuth:        http.StatusUnauthorized,
				ErrorTypeNotFound:    http.StatusNotFound,
				ErrorTypeConflict:    http.StatusConflict,
				ErrorTypeTimeout:     http.StatusRequestTimeout,
				ErrorTypeRateLimit:   http.StatusTooManyRequests,
				ErrorTypeOverloaded:  http.StatusServiceUnavailable,
				ErrorTypeDatabase:    http.StatusInternalServerError,
				ErrorTypeFilesystem:  http.StatusInternalServerError,
				ErrorTypeNetwork:     http.StatusInternalServerError,
				ErrorTypeUnavailable: http.StatusServiceUnavailable,
				ErrorTypeInternal:    http.StatusInternalServerError,
			}
			for errType, status := range cases {
				Expect(New(errType, "msg").StatusCode).To(Equal(status))
			}
		})
	})

	Context("predefined constructors", func() {
		It("builds a not-found error", func() {
			err := NewNotFoundError("todo")
			Expect(err.Type).To(Equal(ErrorTypeNotFound))
			Expect(err.Message).To(Equal("todo not found"))
		})

		It("builds a database error preserving the cause", func() {
			cause := errors.New("connection lost")
			err := NewDatabaseError("query", cause)
			Expect(err.Type).To(Equal(ErrorTypeDatabase))
			Expect(err.Cause).To(Equal(cause))
		})

		It("builds a rate limit error carrying retry-after", func() {
			err := NewRateLimitError(60)
			Expect(err.Type).To(Equal(ErrorTypeRateLimit))
			Expect(err.Message).To(ContainSubstring("60"))
			Expect(err.RetryAfterSeconds).To(Equal(60))
		})
	})

	Context("RPC code selection", func() {
		It("maps validation errors to InvalidParams", func() {
			Expect(New(ErrorTypeValidation, "bad").RPCCode()).To(Equal(-32602))
		})

		It("falls back to InternalError for types without a dedicated code", func() {
			Expect(New(ErrorTypeConflict, "cycle").RPCCode()).To(Equal(-32603))
		})
	})
})
