package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func verificationRecord(userID string, hash [32]byte, ttl time.Duration) *EmailVerificationRecord {
	return &EmailVerificationRecord{
		UserID:     userID,
		SecretHash: hash,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
}

func TestVerificationConsumeMatchDeletesRecord(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewEmailVerificationStore(rdb, "apv")
	ctx := context.Background()

	hash := [32]byte{1, 2, 3}
	if err := store.Save(ctx, "vid-1", verificationRecord("u1", hash, time.Hour), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	record, err := store.Consume(ctx, "vid-1", hash, 5)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if record.UserID != "u1" {
		t.Fatalf("unexpected record: %+v", record)
	}

	if _, err := store.Consume(ctx, "vid-1", hash, 5); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("replay: got %v, want ErrVerificationNotFound", err)
	}
}

func TestVerificationSaveReplacesOutstandingRecord(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewEmailVerificationStore(rdb, "apv")
	ctx := context.Background()

	first := [32]byte{1}
	second := [32]byte{2}
	if err := store.Save(ctx, "vid-1", verificationRecord("u1", first, time.Hour), time.Hour); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.Save(ctx, "vid-2", verificationRecord("u1", second, time.Hour), time.Hour); err != nil {
		t.Fatalf("save second: %v", err)
	}

	// The superseded record is gone; only the latest redeems.
	if _, err := store.Consume(ctx, "vid-1", first, 5); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("stale record: got %v, want ErrVerificationNotFound", err)
	}
	if _, err := store.Consume(ctx, "vid-2", second, 5); err != nil {
		t.Fatalf("latest record: %v", err)
	}
}

func TestVerificationConsumeMismatchBurnsAttempts(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewEmailVerificationStore(rdb, "apv")
	ctx := context.Background()

	hash := [32]byte{1}
	wrong := [32]byte{9}
	if err := store.Save(ctx, "vid-1", verificationRecord("u1", hash, time.Hour), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Consume(ctx, "vid-1", wrong, 3); !errors.Is(err, ErrVerificationSecretMismatch) {
			t.Fatalf("mismatch %d: got %v, want ErrVerificationSecretMismatch", i, err)
		}
	}
	if _, err := store.Consume(ctx, "vid-1", wrong, 3); !errors.Is(err, ErrVerificationAttemptsExceeded) {
		t.Fatalf("final mismatch: got %v, want ErrVerificationAttemptsExceeded", err)
	}
	if _, err := store.Consume(ctx, "vid-1", hash, 3); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("after destruction: got %v, want ErrVerificationNotFound", err)
	}
}

func TestVerificationConsumeExpiredRecord(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewEmailVerificationStore(rdb, "apv")
	ctx := context.Background()

	hash := [32]byte{1}
	if err := store.Save(ctx, "vid-1", verificationRecord("u1", hash, -time.Minute), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Consume(ctx, "vid-1", hash, 5); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expired consume: got %v, want ErrVerificationNotFound", err)
	}
}

func TestVerificationConcurrentConsumeSingleWinner(t *testing.T) {
	_, rdb := newStoreTestRedis(t)
	store := NewEmailVerificationStore(rdb, "apv")
	ctx := context.Background()

	hash := [32]byte{5}
	if err := store.Save(ctx, "vid-1", verificationRecord("u1", hash, time.Hour), time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			_, results[idx] = store.Consume(ctx, "vid-1", hash, 5)
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrVerificationNotFound) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
}

func TestVerificationRecordCodecRoundTrip(t *testing.T) {
	record := &EmailVerificationRecord{
		UserID:     "u1",
		SecretHash: [32]byte{4, 5, 6},
		ExpiresAt:  1700003600,
		Attempts:   1,
	}
	data, err := encodeEmailVerificationRecord(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeEmailVerificationRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.UserID != record.UserID || decoded.SecretHash != record.SecretHash {
		t.Fatalf("identity lost: %+v", decoded)
	}
	if decoded.ExpiresAt != record.ExpiresAt || decoded.Attempts != record.Attempts {
		t.Fatalf("metadata lost: %+v", decoded)
	}
}
