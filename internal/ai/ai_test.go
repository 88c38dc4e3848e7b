package ai

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/jordigilh/devctx-mcp/internal/errors"
)

func TestAI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AI Capability Suite")
}

var _ = Describe("Null", func() {
	It("always reports the capability as unavailable", func() {
		_, err := Null{}.Complete(context.Background(), "hello", 100)
		Expect(err).To(HaveOccurred())

		var appErr *apperrors.AppError
		Expect(apperrors.As(err, &appErr)).To(BeTrue())
		Expect(appErr.Type).To(Equal(apperrors.ErrorTypeUnavailable))
	})
})
