// Package secrets resolves credential references through the OS keychain
// so config files never carry raw API keys.
package secrets

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the app's secrets in the OS keychain.
	KeyringService = "veryscrape"

	// keyringPrefix marks a config auth entry as a keychain reference.
	keyringPrefix = "keyring:"
)

// Resolve expands a config auth entry. Entries of the form
// "keyring:<account>" are looked up in the keychain; anything else is
// returned verbatim.
func Resolve(entry string) (string, error) {
	if !strings.HasPrefix(entry, keyringPrefix) {
		return entry, nil
	}
	account := strings.TrimSpace(strings.TrimPrefix(entry, keyringPrefix))
	if account == "" {
		return "", errors.New("empty keyring account in auth entry")
	}
	pw, err := keyring.Get(KeyringService, account)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(pw) == "" {
		return "", errors.New("keyring entry " + account + " is empty")
	}
	return pw, nil
}

// Set stores a secret under an account name for later Resolve calls.
func Set(account, secret string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(secret) == "" {
		return errors.New("secret is empty")
	}
	return keyring.Set(KeyringService, account, secret)
}

// Delete removes a stored secret.
func Delete(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}
