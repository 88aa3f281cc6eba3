package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvAuthToken = "XARCHIVER_AUTH_TOKEN"
	EnvCT0       = "XARCHIVER_CT0"
	EnvUserAgent = "XARCHIVER_USER_AGENT"
	EnvUsername  = "XARCHIVER_USERNAME"
)

// EnvironmentStore is a read-only CredentialStore over environment
// variables, which may come from a .env file
type EnvironmentStore struct {
	getenv func(string) string
}

// NewEnvironmentStore creates a store reading the process environment
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{getenv: os.Getenv}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds an account from the environment. An empty username
// matches whatever account the environment names.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	authToken := e.getenv(EnvAuthToken)
	ct0 := e.getenv(EnvCT0)
	if authToken == "" || ct0 == "" {
		return nil, ErrCredentialsNotFound
	}

	envUser := e.getenv(EnvUsername)
	if envUser == "" {
		envUser = "default"
	}
	if username != "" && username != envUser {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:     envUser,
		AuthToken:    authToken,
		CT0:          ct0,
		UserAgent:    e.getenv(EnvUserAgent),
		LastModified: time.Time{},
	}, nil
}

// List returns a single account if the environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist for username
func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
