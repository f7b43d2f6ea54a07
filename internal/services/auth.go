package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/argon2"

	"github.com/ngenohkevin/circulation/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidPassword    = errors.New("invalid password format")
	ErrInvalidRSAKey      = errors.New("invalid RSA key")
)

// AuthService signs staff access tokens and checks staff passwords
type AuthService struct {
	privateKey   *rsa.PrivateKey
	publicKey    *rsa.PublicKey
	tokenExpiry  time.Duration
	argon2Config *Argon2Config
	users        map[string]models.StaffUser
	logger       *slog.Logger
	redisClient  *redis.Client
}

type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// NewAuthService creates the auth service. An empty key PEM generates a
// throwaway key, so tokens do not survive a restart.
func NewAuthService(privateKeyPEM string, tokenExpiry time.Duration, staff []models.StaffUser, logger *slog.Logger, redisClient *redis.Client) (*AuthService, error) {
	var (
		privateKey *rsa.PrivateKey
		err        error
	)
	if strings.TrimSpace(privateKeyPEM) == "" {
		logger.Warn("no JWT private key configured, generating an ephemeral key")
		privateKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT key: %w", err)
		}
	} else {
		privateKey, err = parseRSAPrivateKey(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JWT private key: %w", err)
		}
	}

	users := make(map[string]models.StaffUser, len(staff))
	for _, u := range staff {
		users[strings.ToLower(u.Username)] = u
	}

	return &AuthService{
		privateKey:   privateKey,
		publicKey:    &privateKey.PublicKey,
		tokenExpiry:  tokenExpiry,
		argon2Config: DefaultArgon2Config(),
		users:        users,
		logger:       logger,
		redisClient:  redisClient,
	}, nil
}

func parseRSAPrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, ErrInvalidRSAKey
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		if rsaKey, ok := parsedKey.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, ErrInvalidRSAKey
	}

	return privateKey, nil
}

// Login checks staff credentials and issues an access token
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	user, ok := s.users[strings.ToLower(req.Username)]
	if !ok {
		s.logger.Warn("login for unknown user", "username", req.Username)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	valid, err := s.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil {
		s.logger.Error("stored password hash is unreadable", "username", user.Username, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(&user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("staff login", "user_id", user.ID, "role", user.Role)
	return &models.LoginResponse{
		User:        &user,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenExpiry.Seconds()),
	}, nil
}

// DefaultArgon2Config returns the argon2id parameters staff hashes are created with
func DefaultArgon2Config() *Argon2Config {
	return &Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	return HashPassword(password, s.argon2Config)
}

// HashPassword encodes password as a PHC formatted argon2id hash
func HashPassword(password string, params *Argon2Config) (string, error) {
	if len(password) < 8 {
		return "", ErrInvalidPassword
	}

	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		params.KeyLength,
	)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.Memory,
		params.Iterations,
		params.Parallelism,
		b64Salt,
		b64Hash,
	), nil
}

func (s *AuthService) VerifyPassword(hashedPassword, password string) (bool, error) {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 6 {
		return false, errors.New("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return false, errors.New("invalid hash type")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return false, errors.New("incompatible argon2 version")
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("invalid parameters: %w", err)
	}

	decodedSalt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("error decoding salt: %w", err)
	}

	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("error decoding hash: %w", err)
	}

	computedHash := argon2.IDKey(
		[]byte(password),
		decodedSalt,
		iterations,
		memory,
		parallelism,
		uint32(len(decodedHash)),
	)

	return subtle.ConstantTimeCompare(decodedHash, computedHash) == 1, nil
}

// GenerateToken signs an RS256 access token for a staff user
func (s *AuthService) GenerateToken(user *models.StaffUser) (string, error) {
	now := time.Now()

	claims := &models.JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   fmt.Sprintf("staff_%d", user.ID),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
}

// ValidateToken parses a token and rejects it when blacklisted
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		blacklisted, err := s.redisClient.Exists(ctx, blacklistKey(tokenString)).Result()
		if err != nil {
			// Continue validation if Redis is down
			s.logger.Error("Failed to check token blacklist", "error", err)
		}
		if blacklisted > 0 {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// BlacklistToken revokes a token until it would have expired anyway
func (s *AuthService) BlacklistToken(ctx context.Context, tokenString string) error {
	if s.redisClient == nil {
		return errors.New("redis client not configured")
	}

	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}

	expiry := time.Until(claims.ExpiresAt.Time)
	if expiry <= 0 {
		return nil
	}

	if err := s.redisClient.Set(ctx, blacklistKey(tokenString), "1", expiry).Err(); err != nil {
		s.logger.Error("Failed to blacklist token", "error", err)
		return err
	}

	s.logger.Info("Token blacklisted successfully", "user_id", claims.UserID)
	return nil
}

func (s *AuthService) parse(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func blacklistKey(token string) string {
	return "circulation:blacklist:" + token
}
