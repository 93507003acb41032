package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "ac")
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession() *Session {
	now := time.Now()
	return &Session{
		SessionID:   "sid-1",
		UserID:      "u-1",
		Email:       "alice@example.com",
		Roles:       []string{"user"},
		RefreshHash: [32]byte{1},
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}
}

func TestUserIndexIsNamespacedByPrefix(t *testing.T) {
	_, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	// Two stores with distinct prefixes sharing one Redis must keep their
	// per-user indexes apart as well as their session blobs.
	first := NewStore(rdb, "svc1")
	second := NewStore(rdb, "svc2")

	sess := testSession()
	if err := first.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save in first store: %v", err)
	}
	if err := second.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save in second store: %v", err)
	}

	if err := first.DeleteAllForUser(ctx, sess.UserID); err != nil {
		t.Fatalf("delete all in first store: %v", err)
	}

	if _, err := first.Get(ctx, sess.SessionID); !errors.Is(err, redis.Nil) {
		t.Fatalf("first store session should be gone, got %v", err)
	}
	if _, err := second.Get(ctx, sess.SessionID); err != nil {
		t.Fatalf("second store session lost to foreign revoke-all: %v", err)
	}
	ids, err := second.ActiveSessionIDs(ctx, sess.UserID)
	if err != nil {
		t.Fatalf("active session ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != sess.SessionID {
		t.Fatalf("second store index damaged: %v", ids)
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := store.Get(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UserID != sess.UserID || got.Email != sess.Email {
		t.Fatalf("unexpected session: %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "user" {
		t.Fatalf("roles lost in round trip: %v", got.Roles)
	}
	if got.RefreshHash != sess.RefreshHash {
		t.Fatal("refresh hash lost in round trip")
	}
}

func TestGetExpiredEmbeddedExpiryRemovesSession(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession()
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	if _, err := store.Get(ctx, sess.SessionID); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for expired session, got %v", err)
	}

	members, err := rdb.SMembers(ctx, store.userKey(sess.UserID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected index cleanup, got %v", members)
	}
}

func TestDeleteSessionIdempotentAndIndexCleaned(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.Delete(ctx, sess.SessionID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, sess.SessionID); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	members, err := rdb.SMembers(ctx, store.userKey(sess.UserID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected no user index members, got %v", members)
	}
}

func TestDeleteAllForUserRemovesEverySession(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for _, id := range []string{"sid-a", "sid-b", "sid-c"} {
		sess := testSession()
		sess.SessionID = id
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	if err := store.DeleteAllForUser(ctx, "u-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	count, err := store.ActiveSessionCount(ctx, "u-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 sessions, got %d", count)
	}
	for _, id := range []string{"sid-a", "sid-b", "sid-c"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, redis.Nil) {
			t.Fatalf("session %s survived revoke-all: %v", id, err)
		}
	}
}

func TestRotateRefreshHashReplacesHashInPlace(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	next := [32]byte{2}
	rotated, err := store.RotateRefreshHash(ctx, sess.SessionID, sess.RefreshHash, next)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.RefreshHash != next {
		t.Fatal("hash not replaced")
	}
	if rotated.UserID != sess.UserID || rotated.Email != sess.Email {
		t.Fatalf("rotation corrupted session fields: %+v", rotated)
	}

	// A second rotation chained off the new hash succeeds.
	if _, err := store.RotateRefreshHash(ctx, sess.SessionID, next, [32]byte{3}); err != nil {
		t.Fatalf("chained rotate: %v", err)
	}
}

func TestRotateRefreshHashMismatchDestroysSession(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	_, err := store.RotateRefreshHash(ctx, sess.SessionID, [32]byte{99}, [32]byte{2})
	if !errors.Is(err, ErrRefreshHashMismatch) {
		t.Fatalf("expected mismatch sentinel, got %v", err)
	}

	if _, err := store.Get(ctx, sess.SessionID); !errors.Is(err, redis.Nil) {
		t.Fatalf("session survived mismatch: %v", err)
	}
	members, err := rdb.SMembers(ctx, store.userKey(sess.UserID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("index entry survived mismatch: %v", members)
	}
}

func TestRotateRefreshHashSentinelErrors(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	// Not found.
	_, err := store.RotateRefreshHash(ctx, "missing", [32]byte{1}, [32]byte{2})
	if !errors.Is(err, redis.Nil) || !errors.Is(err, ErrRefreshSessionNotFound) {
		t.Fatalf("expected not-found sentinel, got %v", err)
	}

	// Expired.
	expired := testSession()
	expired.SessionID = "sid-expired"
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, expired, time.Hour); err != nil {
		t.Fatalf("save expired session failed: %v", err)
	}
	_, err = store.RotateRefreshHash(ctx, expired.SessionID, expired.RefreshHash, [32]byte{9})
	if !errors.Is(err, redis.Nil) || !errors.Is(err, ErrRefreshSessionExpired) {
		t.Fatalf("expected expired sentinel, got %v", err)
	}

	// Corrupt blob.
	if err := rdb.Set(ctx, store.key("sid-corrupt"), []byte("bad"), time.Hour).Err(); err != nil {
		t.Fatalf("seed corrupt blob failed: %v", err)
	}
	_, err = store.RotateRefreshHash(ctx, "sid-corrupt", [32]byte{1}, [32]byte{2})
	if !errors.Is(err, ErrRefreshSessionCorrupt) {
		t.Fatalf("expected corrupt sentinel, got %v", err)
	}
}

func TestActiveSessionIDsTracksLiveSessions(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}

	sess := testSession()
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}

	ids, err = store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "sid-1" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
