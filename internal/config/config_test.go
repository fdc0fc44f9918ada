package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FillsDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9000
mongodb:
  uri: mongodb://db:27017
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.App.Addr())
	assert.False(t, cfg.App.Development())
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "bookloop", cfg.Mongo.Database)
	assert.Equal(t, "messages", cfg.Mongo.MessagesCollection)
	assert.Equal(t, 25*time.Second, cfg.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.WriteDeadline)
	assert.EqualValues(t, 65536, cfg.WS.MaxMessageSizeBytes)
	assert.Equal(t, 4096, cfg.WS.MaxBodyBytes)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, "message.sent", cfg.Kafka.TopicMessageSent)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9000
mongodb:
  uri: mongodb://db:27017
`)
	t.Setenv("APP_MONGODB_URI", "mongodb://override:27017")
	t.Setenv("APP_APP_ENV", "development")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://override:27017", cfg.Mongo.URI)
	assert.True(t, cfg.App.Development())
}

func TestLoad_MemoryDriverNeedsNoMongo(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.App.Port)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing mongo uri": `
store:
  driver: mongo
`,
		"unknown driver": `
store:
  driver: firestore
`,
		"redis without addr": `
store:
  driver: memory
redis:
  enabled: true
  addr: ""
`,
		"kafka without brokers": `
store:
  driver: memory
kafka:
  enabled: true
`,
		"hs256 without secret": `
store:
  driver: memory
jwt:
  enabled: true
  alg: HS256
`,
		"bad jwt alg": `
store:
  driver: memory
jwt:
  enabled: true
  alg: none
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
