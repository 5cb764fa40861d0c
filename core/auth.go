package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// AuthFailure classifies why an authentication attempt did not produce an identity.
type AuthFailure int

const (
	AuthOK AuthFailure = iota
	NoSuchIdentity
	BadSecret
	StorageUnavailable
)

func (f AuthFailure) String() string {
	switch f {
	case AuthOK:
		return "ok"
	case NoSuchIdentity:
		return "no_such_identity"
	case BadSecret:
		return "bad_secret"
	case StorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// AuthResult is either a bound Identity or a failure. Err is set only for StorageUnavailable.
type AuthResult struct {
	Identity Identity
	Failure  AuthFailure
	Err      error
}

// OK reports whether the attempt produced an identity.
func (r AuthResult) OK() bool { return r.Failure == AuthOK }

// Authenticator verifies credentials and registers new accounts.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) AuthResult
	Register(ctx context.Context, username, password string) (Identity, error)
}

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores anything longer
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// RepositoryAuthService authenticates against a UserRepository with bcrypt hashes.
type RepositoryAuthService struct {
	users   UserRepository
	cost    int
	timeout time.Duration

	dummyOnce sync.Once
	dummyHash []byte
}

func NewRepositoryAuthService(users UserRepository, cost int, timeout time.Duration) *RepositoryAuthService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RepositoryAuthService{users: users, cost: cost, timeout: timeout}
}

// Authenticate looks the username up and compares the password against the stored hash.
// Unknown usernames still pay for one bcrypt comparison so timing does not reveal them.
func (s *RepositoryAuthService) Authenticate(ctx context.Context, username, password string) AuthResult {
	username = strings.TrimSpace(username)
	if username == "" {
		s.burnComparison(password)
		return AuthResult{Failure: NoSuchIdentity}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			s.burnComparison(password)
			return AuthResult{Failure: NoSuchIdentity}
		}
		return AuthResult{Failure: StorageUnavailable, Err: storageErr("find user", err)}
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return AuthResult{Failure: BadSecret}
	}

	id, err := identityFromRecord(u)
	if err != nil {
		return AuthResult{Failure: StorageUnavailable, Err: storageErr("decode user", err)}
	}
	return AuthResult{Identity: id}
}

// Register creates a regular user. Duplicate usernames fail with ErrIdentityExists.
func (s *RepositoryAuthService) Register(ctx context.Context, username, password string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return CreateAccount(ctx, s.users, username, password, RoleUser, s.cost)
}

func (s *RepositoryAuthService) burnComparison(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("olive-agenda-dummy-secret"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

func validateCredentials(username, password string) error {
	switch {
	case len(username) < minUsernameLen || len(username) > maxUsernameLen:
		return invalid("username", "must be between 3 and 64 characters")
	case !usernamePattern.MatchString(username):
		return invalid("username", "may only contain letters, digits, '.', '_' and '-'")
	case len(password) < minPasswordLen:
		return invalid("password", "must be at least 8 characters")
	case len(password) > maxPasswordLen:
		return invalid("password", "must be at most 72 bytes")
	}
	return nil
}

func identityFromRecord(u *UserRecord) (Identity, error) {
	role, err := ParseRole(u.Role)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		ID:        u.ID,
		Username:  u.Username,
		Role:      role,
		CreatedAt: u.CreatedAt,
	}, nil
}
