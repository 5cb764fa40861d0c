package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapAdminCreatesOnce(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers()
	cfg := testConfig()
	cfg.BootstrapAdminEnabled = true
	cfg.InitialAdminPasswordPath = filepath.Join(t.TempDir(), "admin.secret")

	require.NoError(t, BootstrapAdmin(ctx, users, cfg, discardLogger()))
	raw, err := os.ReadFile(cfg.InitialAdminPasswordPath)
	require.NoError(t, err)
	password := strings.TrimSpace(string(raw))
	assert.Len(t, password, 32)

	res := NewRepositoryAuthService(users, cfg.BcryptCost, time.Second).Authenticate(ctx, "admin", password)
	require.True(t, res.OK())
	assert.Equal(t, RoleAdmin, res.Identity.Role)

	require.NoError(t, BootstrapAdmin(ctx, users, cfg, discardLogger()))
	assert.Len(t, users.byName, 1)
}

func TestBootstrapAdminDisabled(t *testing.T) {
	users := newMemUsers()
	cfg := testConfig()
	cfg.BootstrapAdminEnabled = false

	require.NoError(t, BootstrapAdmin(context.Background(), users, cfg, discardLogger()))
	assert.Empty(t, users.byName)
}

func TestBootstrapAdminStorageError(t *testing.T) {
	users := newMemUsers()
	users.fail(errors.New("down"))
	cfg := testConfig()
	cfg.BootstrapAdminEnabled = true

	err := BootstrapAdmin(context.Background(), users, cfg, discardLogger())
	require.Error(t, err)
	assert.True(t, isStorageError(err))
}

func TestCreateAccountWithRole(t *testing.T) {
	users := newMemUsers()
	id, err := CreateAccount(context.Background(), users, "olivier", "tapenade-2026", RoleAdmin, 4)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, id.Role)

	_, err = CreateAccount(context.Background(), users, "olivier", "tapenade-2026", RoleUser, 4)
	assert.ErrorIs(t, err, ErrIdentityExists)
}

func TestBootstrapAdminCreatesMissingSecretDir(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers()
	cfg := testConfig()
	cfg.BootstrapAdminEnabled = true
	cfg.InitialAdminPasswordPath = filepath.Join(t.TempDir(), "secrets", "olive", "admin.secret")

	require.NoError(t, BootstrapAdmin(ctx, users, cfg, discardLogger()))
	raw, err := os.ReadFile(cfg.InitialAdminPasswordPath)
	require.NoError(t, err)

	res := NewRepositoryAuthService(users, cfg.BcryptCost, time.Second).Authenticate(ctx, "admin", strings.TrimSpace(string(raw)))
	assert.True(t, res.OK())
}

func TestBootstrapAdminUnwritableSecretCreatesNoAccount(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers()
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := testConfig()
	cfg.BootstrapAdminEnabled = true
	cfg.InitialAdminPasswordPath = filepath.Join(blocker, "admin.secret")

	require.Error(t, BootstrapAdmin(ctx, users, cfg, discardLogger()))
	has, err := users.HasAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Empty(t, users.byName)

	// a later run with a usable path still bootstraps
	cfg.InitialAdminPasswordPath = filepath.Join(t.TempDir(), "admin.secret")
	require.NoError(t, BootstrapAdmin(ctx, users, cfg, discardLogger()))
	has, err = users.HasAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestBootstrapAdminRemovesSecretWhenNameTaken(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers()
	_, err := CreateAccount(ctx, users, "admin", "plain-user-pass", RoleUser, 4)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.BootstrapAdminEnabled = true
	cfg.InitialAdminPasswordPath = filepath.Join(t.TempDir(), "admin.secret")

	require.NoError(t, BootstrapAdmin(ctx, users, cfg, discardLogger()))
	_, err = os.Stat(cfg.InitialAdminPasswordPath)
	assert.True(t, os.IsNotExist(err))
}
