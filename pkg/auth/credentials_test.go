package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func testAccount(name string) *Account {
	return &Account{
		Username:  name,
		AuthToken: "0123456789abcdef0123456789abcdef01234567",
		CT0:       "ct0_value_" + name + "_abcdef",
		UserAgent: "TestAgent/1.0",
	}
}

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := testAccount("alice")
	require.NoError(t, manager.Store(account))
	assert.False(t, account.LastModified.IsZero())

	retrieved, err := manager.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, account.AuthToken, retrieved.AuthToken)
	assert.Equal(t, account.CT0, retrieved.CT0)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("alice"))
	_, err = manager.Retrieve("alice")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Zero(t, mockStore.Count())
}

func TestManagerRejectsIncompleteAccounts(t *testing.T) {
	manager, _ := NewMockManager()

	assert.Error(t, manager.Store(&Account{AuthToken: "a", CT0: "b"}))
	assert.Error(t, manager.Store(&Account{Username: "u", CT0: "b"}))
	assert.Error(t, manager.Store(&Account{Username: "u", AuthToken: "a"}))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	backup := NewMockStore()
	manager := NewManagerWithStores(broken, backup)

	require.NoError(t, manager.Store(testAccount("bob")))
	assert.True(t, backup.Exists("bob"))
	assert.False(t, broken.Exists("bob"))
}

func TestRetrieveDefaultPrefersEnvironment(t *testing.T) {
	stored := NewMockStore()
	require.NoError(t, stored.Store(testAccount("carol")))
	env := &EnvironmentStore{getenv: func(k string) string {
		return map[string]string{EnvAuthToken: "env_token", EnvCT0: "env_ct0"}[k]
	}}
	manager := NewManagerWithStores(stored, env)

	account, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "env_token", account.AuthToken)
	assert.Equal(t, "default", account.Username)
}

func TestRetrieveDefaultNewestStored(t *testing.T) {
	store := NewMockStore()
	older := testAccount("old")
	older.LastModified = time.Now().Add(-time.Hour)
	newer := testAccount("new")
	newer.LastModified = time.Now()
	require.NoError(t, store.Store(older))
	require.NoError(t, store.Store(newer))

	account, err := NewManagerWithStores(store).RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "new", account.Username)

	_, err = NewManagerWithStores(NewMockStore()).RetrieveDefault()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestSanitizeAccount(t *testing.T) {
	account := testAccount("dave")
	sanitized := SanitizeAccount(account)
	assert.Equal(t, "dave", sanitized.Username)
	assert.Equal(t, "0123...4567", sanitized.AuthToken)
	assert.NotEqual(t, account.CT0, sanitized.CT0)
	assert.Equal(t, "********", maskString("short"))
	assert.Nil(t, SanitizeAccount(nil))
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store := NewEncryptedFileStoreWithPassphrase(path, "test_passphrase_123")

	account := testAccount("erin")
	require.NoError(t, store.Store(account))

	retrieved, err := store.Retrieve("erin")
	require.NoError(t, err)
	assert.Equal(t, account.AuthToken, retrieved.AuthToken)
	assert.True(t, store.Exists("erin"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte(account.AuthToken)))
	assert.False(t, bytes.Contains(content, []byte(account.CT0)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	wrong := NewEncryptedFileStoreWithPassphrase(path, "other")
	_, err = wrong.Retrieve("erin")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(testAccount("frank")))
	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	require.NoError(t, store.Delete("erin"))
	require.NoError(t, store.Delete("frank"))
	assert.NoFileExists(t, path)
	assert.ErrorIs(t, store.Delete("frank"), ErrCredentialsNotFound)
}

func TestEncryptedFileStorePassphraseFile(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("gina")))
	assert.FileExists(t, filepath.Join(dir, ".passphrase"))

	reopened, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.True(t, reopened.Exists("gina"))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvAuthToken, "env_token")
	t.Setenv(EnvCT0, "env_ct0")
	t.Setenv(EnvUsername, "hank")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "hank", account.Username)
	assert.Equal(t, "env_token", account.AuthToken)
	assert.Equal(t, "env_ct0", account.CT0)

	assert.True(t, store.Exists("hank"))
	assert.False(t, store.Exists("someone_else"))
	assert.ErrorIs(t, store.Store(testAccount("x")), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("hank"), ErrStoreUnavailable)

	t.Setenv(EnvCT0, "")
	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(testAccount("ivy")))
	require.NoError(t, store.Store(testAccount("jon")))

	accounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "ivy", accounts[0].Username)
	assert.Equal(t, "jon", accounts[1].Username)

	require.NoError(t, store.Delete("ivy"))
	assert.False(t, store.Exists("ivy"))
	assert.ErrorIs(t, store.Delete("ivy"), ErrCredentialsNotFound)

	accounts, err = store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "jon", accounts[0].Username)
}

func TestMockStoreErrorInjection(t *testing.T) {
	store := NewMockStore()
	store.ListError = errors.New("injected error")
	_, err := store.List()
	assert.EqualError(t, err, "injected error")
}

func TestGuides(t *testing.T) {
	var buf bytes.Buffer
	ShowCookieExtractionGuide(&buf)
	assert.Contains(t, buf.String(), "auth_token")
	assert.Contains(t, buf.String(), "ct0")

	buf.Reset()
	ShowQuickExtractGuide(&buf)
	assert.Contains(t, buf.String(), "auth_token=...")
}
