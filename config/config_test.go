package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// LoaderTestSuite 配置加载器测试套件.
type LoaderTestSuite struct {
	suite.Suite
	dir string
}

func TestLoaderSuite(t *testing.T) {
	suite.Run(t, new(LoaderTestSuite))
}

func (s *LoaderTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *LoaderTestSuite) write(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *LoaderTestSuite) TestLoad_JSON() {
	path := s.write("jobhub.json", `{
		"name": "jobhub-json",
		"store": {"type": "redis", "redis": {"addrs": ["redis-1:6379", "redis-2:6379"]}}
	}`)

	cfg, err := LoadCoordinator(path, WithoutEnv())
	s.Require().NoError(err)
	s.Equal("jobhub-json", cfg.Name)
	s.Equal(StoreRedis, cfg.Store.Type)
	s.Equal([]string{"redis-1:6379", "redis-2:6379"}, cfg.Store.Redis.Addrs)
	s.Equal(":8080", cfg.Server.Addr)
}

func (s *LoaderTestSuite) TestLoad_TOML() {
	path := s.write("agent.toml", `
service_key = "billing"

[scheduler]
url = "http://jobhub:8080"
timeout = "5s"
`)

	cfg, err := LoadAgent(path, WithoutEnv())
	s.Require().NoError(err)
	s.Equal("billing", cfg.ServiceKey)
	s.Equal(5*time.Second, cfg.Scheduler.Timeout)
}

func (s *LoaderTestSuite) TestLoad_ExtensionlessFileIsYAML() {
	path := s.write("config", "name: mounted\nserver:\n  addr: \":9000\"\n")

	cfg, err := LoadCoordinator(path, WithoutEnv())
	s.Require().NoError(err)
	s.Equal("mounted", cfg.Name)
	s.Equal(":9000", cfg.Server.Addr)
}

func (s *LoaderTestSuite) TestLoad_WithConfigType() {
	path := s.write("jobhub.conf", `{"name": "from-json"}`)

	cfg, err := LoadCoordinator(path, WithoutEnv(), WithConfigType("json"))
	s.Require().NoError(err)
	s.Equal("from-json", cfg.Name)
}

func (s *LoaderTestSuite) TestLoad_FileNotFound() {
	_, err := LoadCoordinator(filepath.Join(s.dir, "missing.yaml"))
	s.ErrorIs(err, ErrFileNotFound)
}

func (s *LoaderTestSuite) TestLoad_InvalidYAML() {
	path := s.write("broken.yaml", "store:\n  type: [memory\n")

	_, err := LoadCoordinator(path)
	s.ErrorIs(err, ErrReadConfig)
}

func (s *LoaderTestSuite) TestLoad_UnmarshalError() {
	path := s.write("bad-duration.yaml", "graceful_timeout: soon\n")

	_, err := LoadCoordinator(path, WithoutEnv())
	s.ErrorIs(err, ErrUnmarshal)
}

func (s *LoaderTestSuite) TestWithDefaults_OverridesBuiltins() {
	cfg, err := LoadCoordinator("", WithoutEnv(), WithDefaults(map[string]any{
		"server.addr": ":18080",
		"store.type":  StoreMemory,
	}))
	s.Require().NoError(err)
	s.Equal(":18080", cfg.Server.Addr)
	s.Equal("jobhub", cfg.Name)
}

func (s *LoaderTestSuite) TestWithEnvPrefix() {
	s.T().Setenv("MYHUB_NAME", "prefixed")
	s.T().Setenv("JOBHUB_NAME", "ignored")

	cfg, err := LoadCoordinator("", WithEnvPrefix("MYHUB"))
	s.Require().NoError(err)
	s.Equal("prefixed", cfg.Name)
}

func (s *LoaderTestSuite) TestWithoutEnv() {
	s.T().Setenv("JOBHUB_SERVER_ADDR", ":7070")
	path := s.write("jobhub.yaml", "server:\n  addr: \":9090\"\n")

	cfg, err := LoadCoordinator(path, WithoutEnv())
	s.Require().NoError(err)
	s.Equal(":9090", cfg.Server.Addr)

	cfg, err = LoadCoordinator(path)
	s.Require().NoError(err)
	s.Equal(":7070", cfg.Server.Addr)
}

func (s *LoaderTestSuite) TestEnvOverridesAgentDuration() {
	s.T().Setenv("JOBHUB_REGISTRAR_MAX_DELAY", "90s")

	cfg, err := LoadAgent("")
	s.Require().NoError(err)
	s.Equal(90*time.Second, cfg.Registrar.MaxDelay)
}

func (s *LoaderTestSuite) TestGetConfigType() {
	tests := map[string]string{
		"jobhub.yaml":  "yaml",
		"jobhub.YML":   "yaml",
		"agent.json":   "json",
		"agent.toml":   "toml",
		"jobhub.conf":  "",
		"/etc/jobhub/": "",
	}
	for name, want := range tests {
		s.Equal(want, GetConfigType(name), name)
	}
}
