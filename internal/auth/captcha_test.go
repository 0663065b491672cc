package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptchaVerifyMatch(t *testing.T) {
	store := NewCaptchaStore(5 * time.Minute)
	defer store.Close()

	id, code := store.Create()
	require.Len(t, code, 4)

	assert.True(t, store.Verify(id, " "+code+" "))
}

func TestCaptchaIsOneShot(t *testing.T) {
	store := NewCaptchaStore(5 * time.Minute)
	defer store.Close()

	id, code := store.Create()
	require.True(t, store.Verify(id, code))
	assert.False(t, store.Verify(id, code), "second verification must fail")
}

func TestCaptchaWrongCodeConsumesEntry(t *testing.T) {
	store := NewCaptchaStore(5 * time.Minute)
	defer store.Close()

	id, code := store.Create()
	assert.False(t, store.Verify(id, "xxxx"))
	assert.False(t, store.Verify(id, code), "entry is gone after a failed attempt")
}

func TestCaptchaExpires(t *testing.T) {
	store := NewCaptchaStore(-time.Second)
	defer store.Close()

	id, code := store.Create()
	assert.False(t, store.Verify(id, code))
}

func TestCaptchaUnknownID(t *testing.T) {
	store := NewCaptchaStore(5 * time.Minute)
	defer store.Close()

	assert.False(t, store.Verify("no-such-id", "1234"))
}

func TestCaptchaDelete(t *testing.T) {
	store := NewCaptchaStore(5 * time.Minute)
	defer store.Close()

	id, code := store.Create()
	store.Delete(id)
	assert.False(t, store.Verify(id, code))
}
