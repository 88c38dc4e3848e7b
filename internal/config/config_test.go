package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jordigilh/devctx-mcp/internal/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
		os.Unsetenv("DB_URL")
		os.Unsetenv("DB_PASSWORD")
		os.Unsetenv("API_KEYS")
		os.Unsetenv("ALLOWED_IPS")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("MAX_CONNECTIONS")
		os.Unsetenv("RATE_LIMIT")
	})

	Describe("Load", func() {
		Context("when the config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  stdio_enabled: true
  http_port: "8080"
  sse_port: "8081"

storage:
  host: "localhost"
  port: "5432"
  user: "devctx"
  database: "devctx"

admission:
  rate_limit: 60
  rate_per_seconds: 60
  max_connections: 100
  request_timeout_sec: 300

logging:
  level: "info"
  format: "json"

ai:
  provider: "anthropic"
  model: "claude-3-5-sonnet"
`
				Expect(os.WriteFile(configFile, []byte(validConfig), 0644)).To(Succeed())
			})

			It("loads successfully", func() {
				cfg, err := config.Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.HTTPPort).To(Equal("8080"))
				Expect(cfg.Admission.RateLimit).To(Equal(60))
				Expect(cfg.AI.Provider).To(Equal("anthropic"))
			})
		})

		Context("when the file does not exist", func() {
			It("returns an error", func() {
				_, err := config.Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})

		Context("environment overrides", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(configFile, []byte("admission:\n  rate_limit: 10\n"), 0644)).To(Succeed())
			})

			It("overrides rate_limit, api keys, allowed ips, and log level from the environment", func() {
				os.Setenv("RATE_LIMIT", "99")
				os.Setenv("API_KEYS", "key-a, key-b")
				os.Setenv("ALLOWED_IPS", "10.0.0.1,10.0.0.2")
				os.Setenv("LOG_LEVEL", "debug")

				cfg, err := config.Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Admission.RateLimit).To(Equal(99))
				Expect(cfg.Admission.APIKeys).To(Equal([]string{"key-a", "key-b"}))
				Expect(cfg.Admission.AllowedIPs).To(Equal([]string{"10.0.0.1", "10.0.0.2"}))
				Expect(cfg.Logging.Level).To(Equal("debug"))
			})

			It("prefers DB_URL over DB_PASSWORD composition", func() {
				os.Setenv("DB_URL", "postgres://explicit/db")
				os.Setenv("DB_PASSWORD", "pw")
				cfg, err := config.Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Storage.URL).To(Equal("postgres://explicit/db"))
			})
		})
	})

	Describe("Default", func() {
		It("provides sane admission and logging defaults", func() {
			cfg := config.Default()
			Expect(cfg.Admission.RequestTimeout().Seconds()).To(Equal(300.0))
			Expect(cfg.Logging.Level).To(Equal("info"))
		})
	})
})
