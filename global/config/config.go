package config

import (
	"os"
	"strconv"
	"time"

	"ChatWire/logger"
	"ChatWire/tools/ids"
)

// AppConfig is the process-wide configuration. Defaults suit local
// development; every field can be overridden through the environment.
type AppConfig struct {
	NodeID string // gateway identity, used by the relay and presence mirror
	Port   int

	MongoURI      string
	MongoDatabase string
	MongoPool     int
	MongoRetry    int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSServers string // empty disables the relay

	JWTSecret        string
	JWTRefreshSecret string

	TypingTTL   time.Duration
	PresenceTTL time.Duration
}

var Global = AppConfig{
	NodeID:           "gateway_1",
	Port:             8080,
	MongoURI:         "mongodb://localhost:27017",
	MongoDatabase:    "chatwire",
	MongoPool:        20,
	MongoRetry:       3,
	RedisAddr:        "127.0.0.1:6379",
	RedisDB:          0,
	NATSServers:      "",
	JWTSecret:        "dev-access-secret-change-me",
	JWTRefreshSecret: "dev-refresh-secret-change-me",
	TypingTTL:        30 * time.Second,
	PresenceTTL:      90 * time.Second,
}

// ConfigAll applies environment overrides and seeds the id generator.
func ConfigAll() {
	loadEnv()
	ConfigIds()
}

func loadEnv() {
	envStr("CHATWIRE_NODE_ID", &Global.NodeID)
	envInt("CHATWIRE_PORT", &Global.Port)
	envStr("CHATWIRE_MONGO_URI", &Global.MongoURI)
	envStr("CHATWIRE_MONGO_DB", &Global.MongoDatabase)
	envInt("CHATWIRE_MONGO_POOL", &Global.MongoPool)
	envStr("CHATWIRE_REDIS_ADDR", &Global.RedisAddr)
	envStr("CHATWIRE_REDIS_PASSWORD", &Global.RedisPassword)
	envInt("CHATWIRE_REDIS_DB", &Global.RedisDB)
	envStr("CHATWIRE_NATS_SERVERS", &Global.NATSServers)
	envStr("CHATWIRE_JWT_SECRET", &Global.JWTSecret)
	envStr("CHATWIRE_JWT_REFRESH_SECRET", &Global.JWTRefreshSecret)
	envDur("CHATWIRE_TYPING_TTL", &Global.TypingTTL)
	envDur("CHATWIRE_PRESENCE_TTL", &Global.PresenceTTL)
}

func ConfigIds() {
	logger.Infof("configure id generator node=%s", Global.NodeID)
	ids.SetNodeID(nodeNumber(Global.NodeID))
}

// nodeNumber derives a stable snowflake node id from the gateway name.
func nodeNumber(name string) int64 {
	var h int64
	for _, r := range name {
		h = h*31 + int64(r)
	}
	if h < 0 {
		h = -h
	}
	return h % 1024
}

func GetJwtSecret() []byte        { return []byte(Global.JWTSecret) }
func GetJwtRefreshSecret() []byte { return []byte(Global.JWTRefreshSecret) }

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			logger.Warnf("config %s=%q is not an integer, keeping %d", key, v, *dst)
			return
		}
		*dst = n
	}
}

func envDur(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Warnf("config %s=%q is not a duration, keeping %s", key, v, *dst)
			return
		}
		*dst = d
	}
}
