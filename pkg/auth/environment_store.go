package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// Useful in CI and containers where no keyring or file store exists.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	authToken := os.Getenv("XDUMPER_AUTH_TOKEN")
	ct0 := os.Getenv("XDUMPER_CT0")
	userAgent := os.Getenv("XDUMPER_USER_AGENT")

	if authToken == "" || ct0 == "" {
		return nil, ErrCredentialsNotFound
	}

	// Environment variables don't carry a username
	if username == "" {
		username = "default"
	}

	return &Account{
		Username:     username,
		AuthToken:    authToken,
		CT0:          ct0,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
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

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(username string) bool {
	return os.Getenv("XDUMPER_AUTH_TOKEN") != "" && os.Getenv("XDUMPER_CT0") != ""
}
