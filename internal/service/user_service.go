package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"account-api/internal/domain"
	"account-api/internal/repository"
)

// UserService coordina reglas de negocio para usuarios.
type UserService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	hasher  PasswordHasher
	limiter LoginRateLimiter
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, hasher PasswordHasher, limiter LoginRateLimiter) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(bcrypt.DefaultCost)
	}
	if limiter == nil {
		limiter = NewLoginRateLimiter(defaultLoginWindow, defaultLoginMax, defaultLoginIPMax)
	}
	return &UserService{
		logger:  logger,
		users:   users,
		hasher:  hasher,
		limiter: limiter,
	}
}

// RegisterInput son los datos aceptados por el registro.
type RegisterInput struct {
	Email    string
	Password string
	IsAdmin  bool
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("rate limited")
	ErrCreateFailed       = errors.New("could not create user")
)

const (
	defaultLoginWindow = 15 * time.Minute
	defaultLoginMax    = 10
)

// Register valida el request, verifica que el email este libre y persiste el usuario
// con username igual al email. El indice unico de la base sigue siendo la garantia
// final: si otro registro gana la carrera, el error vuelve como ErrCreateFailed.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.UserInfo, error) {
	if s.users == nil {
		return domain.UserInfo{}, errors.New("user service not configured")
	}

	email := strings.TrimSpace(input.Email)
	if err := validateEmail(email); err != nil {
		return domain.UserInfo{}, err
	}
	password := strings.TrimSpace(input.Password)
	if err := validatePassword(password); err != nil {
		return domain.UserInfo{}, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return domain.UserInfo{}, ErrEmailTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.UserInfo{}, fmt.Errorf("lookup email: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.UserInfo{}, err
	}

	created, err := s.users.Create(ctx, domain.User{
		Email:        email,
		Username:     email,
		PasswordHash: passwordHash,
		IsAdmin:      input.IsAdmin,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			s.logger.Warn("registration lost uniqueness race", zap.String("email", email))
		}
		return domain.UserInfo{}, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	s.logger.Info("user registered", zap.String("user_id", created.ID))
	return created.Info(), nil
}

// Authenticate verifica credenciales. Usuario inexistente y password incorrecto
// devuelven el mismo error. Solo los intentos fallidos cuentan para el limite.
func (s *UserService) Authenticate(ctx context.Context, emailAddr, password, clientIP string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	emailAddr = strings.TrimSpace(emailAddr)
	password = strings.TrimSpace(password)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if !s.limiter.Allow(ctx, emailAddr, clientIP) {
		s.logger.Warn("login rate limited", zap.String("email", emailAddr), zap.String("client_ip", clientIP))
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.limiter.Fail(ctx, emailAddr, clientIP)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		s.limiter.Fail(ctx, emailAddr, clientIP)
		return domain.User{}, ErrInvalidCredentials
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			s.logger.Warn("password verify failed", zap.Error(err), zap.String("user_id", user.ID))
		}
		s.limiter.Fail(ctx, emailAddr, clientIP)
		return domain.User{}, ErrInvalidCredentials
	}
	s.limiter.Reset(ctx, emailAddr)
	return user, nil
}

// GetUser devuelve la proyeccion publica del usuario.
func (s *UserService) GetUser(ctx context.Context, id string) (domain.UserInfo, error) {
	if s.users == nil {
		return domain.UserInfo{}, errors.New("user service not configured")
	}
	if strings.TrimSpace(id) == "" {
		return domain.UserInfo{}, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserInfo{}, ErrUserNotFound
		}
		return domain.UserInfo{}, err
	}
	return user.Info(), nil
}
