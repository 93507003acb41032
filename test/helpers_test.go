package test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	authcore "github.com/tauinbox/client-server-starter-app-sub001"
	"github.com/tauinbox/client-server-starter-app-sub001/store/memory"
)

func newTestKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519 keygen failed: %v", err)
	}
	return pub, priv
}

func newTestConfig(t *testing.T) authcore.Config {
	t.Helper()

	pub, priv := newTestKeys(t)
	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.PasswordReset.Enabled = true
	cfg.PasswordReset.EnumerationDelayMax = 2 * time.Millisecond
	cfg.Audit.Enabled = true
	return cfg
}

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// newBuiltEngine assembles a full engine through the public builder, the way
// an embedding application would, backed by miniredis and the in-memory
// user store.
func newBuiltEngine(t *testing.T, cfg authcore.Config) (*authcore.Engine, *authcore.ChannelSink) {
	t.Helper()

	rdb := newTestRedisClient(t)

	sink := authcore.NewChannelSink(128)
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(memory.New()).
		WithAuditSink(sink).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, sink
}

// awaitAudit drains the sink until an event with the given action arrives.
// The dispatcher delivers asynchronously, so a plain channel read may see
// earlier events first.
func awaitAudit(t *testing.T, sink *authcore.ChannelSink, action string) authcore.AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.Action == action {
				return event
			}
		case <-deadline:
			t.Fatalf("no %q audit event arrived", action)
		}
	}
}
