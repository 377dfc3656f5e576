package credential

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAESGCMStore_EncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	store, err := NewAESGCMStore(key)
	require.NoError(t, err)

	nonce := make([]byte, 12)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	plaintext := []byte(`{"type":"service_account","client_email":"svc@x.iam.gserviceaccount.com"}`)
	blob, err := store.Encrypt(plaintext, nonce)
	require.NoError(t, err)

	got, err := store.Decrypt(context.Background(), blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestAESGCMStore_DecryptFailsOnTamperedBlob(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	store, err := NewAESGCMStore(key)
	require.NoError(t, err)

	nonce := make([]byte, 12)
	blob, err := store.Encrypt([]byte("secret"), nonce)
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0xFF
	_, err = store.Decrypt(context.Background(), blob)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestNewAESGCMStore_RejectsWrongKeyLength(t *testing.T) {
	_, err := NewAESGCMStore([]byte("too-short"))
	require.Error(t, err)
}

func TestAESGCMStore_DecryptFailsOnShortBlob(t *testing.T) {
	key := make([]byte, 32)
	store, err := NewAESGCMStore(key)
	require.NoError(t, err)

	_, err = store.Decrypt(context.Background(), []byte("x"))
	require.ErrorIs(t, err, ErrDecrypt)
}
