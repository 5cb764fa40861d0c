package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// RedisStore is a gorilla sessions.Store that keeps session values in Redis.
// The cookie only carries the signed session id.
type RedisStore struct {
	client     redis.UniversalClient
	codecs     []securecookie.Codec
	options    sessions.Options
	serializer securecookie.GobEncoder
	timeout    time.Duration
}

// NewRedisStore signs session ids with keyPairs (see securecookie.CodecsFromPairs).
func NewRedisStore(client redis.UniversalClient, opts sessions.Options, timeout time.Duration, keyPairs ...[]byte) *RedisStore {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok && opts.MaxAge > 0 {
			sc.MaxAge(opts.MaxAge)
		}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisStore{
		client:  client,
		codecs:  codecs,
		options: opts,
		timeout: timeout,
	}
}

// Get returns the session registered for this request, loading it on first use.
func (s *RedisStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie, or returns a fresh one.
// A missing, forged or expired cookie is not an error; only Redis failures are.
func (s *RedisStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := s.options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		return session, nil
	}

	found, err := s.load(r.Context(), id, session)
	if err != nil {
		return session, err
	}
	if found {
		session.ID = id
		session.IsNew = false
	}
	return session, nil
}

// Save writes the values to Redis and refreshes the cookie. MaxAge < 0 deletes both.
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options != nil && session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.delete(r.Context(), session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		session.ID = id
	}
	if err := s.store(r.Context(), session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Regenerate drops the stored record and clears the id so the next Save issues a new one.
func (s *RedisStore) Regenerate(ctx context.Context, session *sessions.Session) error {
	if session.ID == "" {
		return nil
	}
	if err := s.delete(ctx, session.ID); err != nil {
		return err
	}
	session.ID = ""
	session.IsNew = true
	return nil
}

// Ping is used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) load(ctx context.Context, id string, session *sessions.Session) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("load session", err)
	}
	if err := s.serializer.Deserialize(data, &session.Values); err != nil {
		// undecodable record: treat as a fresh session
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) store(ctx context.Context, session *sessions.Session) error {
	data, err := s.serializer.Serialize(session.Values)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	age := s.options.MaxAge
	if session.Options != nil && session.Options.MaxAge > 0 {
		age = session.Options.MaxAge
	}
	ttl := time.Duration(age) * time.Second

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return storageErr("save session", s.client.Set(ctx, sessionKeyPrefix+session.ID, data, ttl).Err())
}

func (s *RedisStore) delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return storageErr("delete session", s.client.Del(ctx, sessionKeyPrefix+id).Err())
}

// NewSessionStore builds the configured gorilla store. redisClient may be nil for the cookie backend.
func NewSessionStore(cfg Config, redisClient redis.UniversalClient) (sessions.Store, error) {
	opts := sessionOptions(cfg)
	switch cfg.SessionBackend {
	case SessionBackendCookie:
		store := sessions.NewCookieStore([]byte(cfg.SessionKey))
		store.Options = &opts
		store.MaxAge(opts.MaxAge)
		return store, nil
	case SessionBackendRedis:
		if redisClient == nil {
			return nil, errors.New("redis session backend requires a redis client")
		}
		return NewRedisStore(redisClient, opts, cfg.StoreTimeout, []byte(cfg.SessionKey)), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
