package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bootstrapAdminUsername = "admin"

// BootstrapAdmin creates an initial admin user when none exists.
// It is idempotent: if an admin already exists, it does nothing.
func BootstrapAdmin(ctx context.Context, repo UserRepository, cfg Config, logger *slog.Logger) error {
	if !cfg.BootstrapAdminEnabled {
		return nil
	}

	has, err := repo.HasAdmin(ctx)
	if err != nil {
		return storageErr("check admin", err)
	}
	if has {
		return nil
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}

	// write the secret before the account exists; a failed create removes it again
	path := cfg.InitialAdminPasswordPath
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("create initial admin password dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(password+"\n"), 0o600); err != nil {
			return fmt.Errorf("write initial admin password: %w", err)
		}
	}

	if _, err := CreateAccount(ctx, repo, bootstrapAdminUsername, password, RoleAdmin, cfg.BcryptCost); err != nil {
		if path != "" {
			_ = os.Remove(path)
		}
		if errors.Is(err, ErrIdentityExists) {
			// a non-admin already owns the name; leave it to the operator
			logger.Warn("bootstrap admin skipped: username taken", "username", bootstrapAdminUsername)
			return nil
		}
		return err
	}

	if path != "" {
		logger.Info("initial admin created", "username", bootstrapAdminUsername, "credentials_path", path)
	} else {
		logger.Info("initial admin created", "username", bootstrapAdminUsername, "password", password)
	}
	return nil
}

// CreateAccount hashes password and stores a new account with the given role.
// Operator tooling uses it directly, so it applies the same rules as signup.
func CreateAccount(ctx context.Context, repo UserRepository, username, password string, role Role, cost int) (Identity, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return Identity{}, err
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return Identity{}, err
	}
	rec, err := repo.Create(ctx, username, string(hash), role)
	if err != nil {
		if errors.Is(err, ErrIdentityExists) {
			return Identity{}, ErrIdentityExists
		}
		return Identity{}, storageErr("create user", err)
	}
	return identityFromRecord(rec)
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
