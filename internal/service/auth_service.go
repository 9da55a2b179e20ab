package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/awraqsoft/munaqasat/internal/config"
	"github.com/awraqsoft/munaqasat/internal/ident"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/pending"
	"github.com/awraqsoft/munaqasat/internal/repository"
	"github.com/awraqsoft/munaqasat/internal/store"
)

// ErrInvalidCredentials covers both unknown email and wrong password so
// the response does not leak which one failed.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken rejects a registration against an existing account.
var ErrEmailTaken = errors.New("email already registered")

// AuthService handles registration, login and the session lifecycle.
// Sign-in and sign-out hooks let the rest of the system warm and clear
// per-user state without auth knowing who listens.
type AuthService struct {
	users    *repository.UserRepository
	rdb      *redis.Client
	cache    *store.Cache
	pending  *pending.Store
	cfg      *config.Config
	log      *zap.Logger
	onSignIn []func(ownerID string)
}

func NewAuthService(users *repository.UserRepository, rdb *redis.Client, cache *store.Cache, pendingStore *pending.Store, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{
		users:   users,
		rdb:     rdb,
		cache:   cache,
		pending: pendingStore,
		cfg:     cfg,
		log:     log.Named("auth"),
	}
}

// OnSignIn registers a hook fired after each successful login.
func (s *AuthService) OnSignIn(fn func(ownerID string)) {
	s.onSignIn = append(s.onSignIn, fn)
}

// TokenPair is the login result.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RegisterRequest carries the sign-up fields.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates a user account.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*entity.User, error) {
	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	userID, err := ident.New(ident.User)
	if err != nil {
		return nil, err
	}
	companyID, err := ident.New(ident.Company)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		ID:           userID,
		CompanyID:    companyID,
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials, issues a token pair and fires the
// sign-in hooks.
func (s *AuthService) Login(ctx context.Context, email, password string) (*entity.User, *TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	for _, fn := range s.onSignIn {
		go fn(user.ID)
	}
	return user, pair, nil
}

// Logout revokes the refresh token and drops the user's cached
// snapshots and staged items.
func (s *AuthService) Logout(ctx context.Context, userID, refreshTokenString string) error {
	if refreshTokenString != "" {
		if claims, err := s.parseRefresh(refreshTokenString); err == nil {
			if jti, ok := claims["jti"].(string); ok {
				s.rdb.Del(ctx, "token:refresh:"+jti)
			}
		}
	}
	s.cache.Invalidate(ctx, userID)
	s.pending.ClearAll(ctx, userID)
	return nil
}

// RefreshToken rotates the refresh token and issues a new pair.
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	claims, err := s.parseRefresh(refreshTokenString)
	if err != nil {
		return nil, err
	}

	jti, _ := claims["jti"].(string)
	userID, err := s.rdb.Get(ctx, "token:refresh:"+jti).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh token expired or revoked")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}

	s.rdb.Del(ctx, "token:refresh:"+jti)
	return s.generateTokenPair(ctx, user)
}

// GetCurrentUser resolves the authenticated user record.
func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (*entity.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AuthService) generateTokenPair(ctx context.Context, user *entity.User) (*TokenPair, error) {
	now := time.Now()

	accessClaims := jwt.MapClaims{
		"sub":     user.ID,
		"uid":     user.ID,
		"company": user.CompanyID,
		"name":    user.Name,
		"email":   user.Email,
		"iss":     s.cfg.JWT.Issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(s.cfg.JWT.AccessTokenExpire).Unix(),
		"jti":     uuid.New().String(),
	}
	accessTokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshJti := uuid.New().String()
	refreshClaims := jwt.MapClaims{
		"sub":  user.ID,
		"type": "refresh",
		"iss":  s.cfg.JWT.Issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(s.cfg.JWT.RefreshTokenExpire).Unix(),
		"jti":  refreshJti,
	}
	refreshTokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	s.rdb.Set(ctx, "token:refresh:"+refreshJti, user.ID, s.cfg.JWT.RefreshTokenExpire)

	return &TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenExpire.Seconds()),
	}, nil
}

func (s *AuthService) parseRefresh(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims["type"] != "refresh" {
		return nil, fmt.Errorf("invalid token type")
	}
	return claims, nil
}
