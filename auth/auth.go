// Package auth signs users up and in, issues bearer tokens and resolves a
// token back to the user id the domain services act for.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"giftshop/model"
	"giftshop/service"
	"giftshop/store"
)

const (
	issuer            = "giftshop"
	minPasswordLength = 6
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidInput       = errors.New("invalid input")
)

// Token is what SignIn hands back to the client.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Options struct {
	Secret     []byte
	TTL        time.Duration
	BcryptCost int
}

type Service struct {
	store  store.DocumentStore
	secret []byte
	ttl    time.Duration
	cost   int
	log    logrus.FieldLogger
	now    func() time.Time

	// serializes sign ups so the email uniqueness check and the insert
	// cannot interleave within this process
	signupMu sync.Mutex
}

func NewService(st store.DocumentStore, opts Options, log logrus.FieldLogger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:  st,
		secret: opts.Secret,
		ttl:    opts.TTL,
		cost:   opts.BcryptCost,
		log:    log,
		now:    time.Now,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: bad email address", ErrInvalidInput)
	}
	return email, nil
}

// SignUp registers a new user. Emails are compared case-insensitively.
func (s *Service) SignUp(ctx context.Context, email, password string) (model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.User{}, err
	}
	if len(password) < minPasswordLength {
		return model.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return model.User{}, err
	}

	s.signupMu.Lock()
	defer s.signupMu.Unlock()

	if _, err := s.findByEmail(ctx, email); err == nil {
		return model.User{}, ErrEmailTaken
	} else if !errors.Is(err, service.ErrNotFound) {
		return model.User{}, err
	}

	u := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	data, err := json.Marshal(u)
	if err != nil {
		return model.User{}, err
	}
	if err := s.store.Set(ctx, store.CollectionUsers, u.ID, data); err != nil {
		return model.User{}, fmt.Errorf("%w: create user: %w", service.ErrBackendUnavailable, err)
	}

	s.log.WithField("user_id", u.ID).Info("user signed up")
	u.PasswordHash = ""
	return u, nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (model.User, error) {
	docs, err := s.store.Query(ctx, store.CollectionUsers, store.Where{Field: "email", Value: email})
	if err != nil {
		return model.User{}, fmt.Errorf("%w: find user: %w", service.ErrBackendUnavailable, err)
	}
	if len(docs) == 0 {
		return model.User{}, service.ErrNotFound
	}
	var u model.User
	if err := json.Unmarshal(docs[0].Data, &u); err != nil {
		return model.User{}, fmt.Errorf("%w: user %s: %v", service.ErrBackendUnavailable, docs[0].ID, err)
	}
	u.ID = docs[0].ID
	return u, nil
}

// SignIn checks the credentials and opens a session backing a new token.
func (s *Service) SignIn(ctx context.Context, email, password string) (Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Token{}, ErrInvalidCredentials
	}
	u, err := s.findByEmail(ctx, email)
	if errors.Is(err, service.ErrNotFound) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	sess := model.Session{
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	sessID := uuid.NewString()

	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   u.ID,
		ID:        sessID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return Token{}, err
	}
	if err := s.store.Set(ctx, store.CollectionSessions, sessID, data); err != nil {
		return Token{}, fmt.Errorf("%w: create session: %w", service.ErrBackendUnavailable, err)
	}

	return Token{AccessToken: signed, TokenType: "Bearer", UserID: u.ID, ExpiresAt: sess.ExpiresAt}, nil
}

func (s *Service) parse(token string, opts ...jwt.ParserOption) (*jwt.RegisteredClaims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CurrentUser resolves a bearer token to its user id. The token must verify
// and its session must still exist.
func (s *Service) CurrentUser(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	doc, err := s.store.Get(ctx, store.CollectionSessions, claims.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("%w: get session: %w", service.ErrBackendUnavailable, err)
	}
	var sess model.Session
	if err := json.Unmarshal(doc.Data, &sess); err != nil || sess.UserID != claims.Subject {
		return "", ErrInvalidToken
	}
	return sess.UserID, nil
}

// SignOut revokes the token's session. Signing out twice, or with an expired
// token, succeeds.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.CollectionSessions, claims.ID); err != nil {
		return fmt.Errorf("%w: delete session: %w", service.ErrBackendUnavailable, err)
	}
	return nil
}

// PurgeExpiredSessions deletes session records past their expiry and
// reports how many were removed.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int, error) {
	docs, err := s.store.Query(ctx, store.CollectionSessions)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, d := range docs {
		var sess model.Session
		if err := json.Unmarshal(d.Data, &sess); err != nil {
			s.log.WithField("session_id", d.ID).WithError(err).Warn("dropping unreadable session")
		} else if sess.ExpiresAt.After(now) {
			continue
		}
		if err := s.store.Delete(ctx, store.CollectionSessions, d.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
