package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ctmsgb/booking-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNoOTPFound indicates no live OTP exists for the user (never issued or expired)
	ErrNoOTPFound = errors.New("no OTP found or OTP expired")

	// ErrOTPInvalid indicates the OTP is incorrect
	ErrOTPInvalid = errors.New("invalid OTP code")

	// ErrMaxAttemptsExceeded indicates too many failed validation attempts
	ErrMaxAttemptsExceeded = errors.New("maximum OTP validation attempts exceeded")

	// ErrResetTokenInvalid indicates the reset token is unknown, used or expired
	ErrResetTokenInvalid = errors.New("reset token is invalid or expired")

	// ErrKeyNotFound is returned by ResetKV for absent keys
	ErrKeyNotFound = errors.New("key not found")
)

// ResetKV is the key-value surface the reset store needs. Every key carries a TTL.
type ResetKV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisKV implements ResetKV on go-redis
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps a Redis client
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (k *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return k.client.Set(ctx, key, value, ttl).Err()
}

func (k *RedisKV) Get(ctx context.Context, key string) (string, error) {
	value, err := k.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	return value, err
}

func (k *RedisKV) GetDel(ctx context.Context, key string) (string, error) {
	value, err := k.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	return value, err
}

func (k *RedisKV) Del(ctx context.Context, keys ...string) error {
	return k.client.Del(ctx, keys...).Err()
}

// Incr increments a counter and refreshes its TTL atomically
func (k *RedisKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := k.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// ============================================================================
// PASSWORD RESET STORE
// ============================================================================

// PasswordResetStore keeps password-reset OTPs and reset tokens in Redis with
// TTLs. OTPs are stored as bcrypt hashes; reset tokens are single use.
type PasswordResetStore struct {
	kv     ResetKV
	cfg    config.PasswordResetConfig
	logger *logrus.Logger
}

// NewPasswordResetStore creates a new PasswordResetStore
func NewPasswordResetStore(kv ResetKV, cfg config.PasswordResetConfig, logger *logrus.Logger) *PasswordResetStore {
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &PasswordResetStore{kv: kv, cfg: cfg, logger: logger}
}

func otpKey(userID uuid.UUID) string      { return "pwreset:otp:" + userID.String() }
func attemptsKey(userID uuid.UUID) string { return "pwreset:attempts:" + userID.String() }
func tokenKey(token string) string        { return "pwreset:token:" + token }

// IssueOTP creates a new OTP for the user, replacing any previous one
func (s *PasswordResetStore) IssueOTP(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	otp, err := generateRandomOTP(s.cfg.OTPLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate OTP: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(otp), s.cfg.BcryptCost)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to hash OTP: %w", err)
	}

	if err := s.kv.Del(ctx, attemptsKey(userID)); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to reset OTP attempts: %w", err)
	}
	if err := s.kv.Set(ctx, otpKey(userID), string(hash), s.cfg.OTPExpiry); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store OTP: %w", err)
	}

	s.logger.WithField("user_id", userID).Info("Password reset OTP issued")
	return otp, time.Now().Add(s.cfg.OTPExpiry), nil
}

// VerifyOTP checks the code and, on success, burns it and returns a reset token
func (s *PasswordResetStore) VerifyOTP(ctx context.Context, userID uuid.UUID, code string) (string, error) {
	hash, err := s.kv.Get(ctx, otpKey(userID))
	if errors.Is(err, ErrKeyNotFound) {
		return "", ErrNoOTPFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load OTP: %w", err)
	}

	attempts, err := s.kv.Incr(ctx, attemptsKey(userID), s.cfg.OTPExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to count OTP attempt: %w", err)
	}
	if attempts > int64(s.cfg.MaxAttempts) {
		if err := s.kv.Del(ctx, otpKey(userID), attemptsKey(userID)); err != nil {
			s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to drop exhausted OTP")
		}
		return "", ErrMaxAttemptsExceeded
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(code))); err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id":  userID,
			"attempts": attempts,
		}).Warn("Invalid password reset OTP")
		return "", ErrOTPInvalid
	}

	if err := s.kv.Del(ctx, otpKey(userID), attemptsKey(userID)); err != nil {
		return "", fmt.Errorf("failed to burn OTP: %w", err)
	}

	token := uuid.NewString()
	if err := s.kv.Set(ctx, tokenKey(token), userID.String(), s.cfg.TokenExpiry); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}
	return token, nil
}

// RemainingAttempts returns how many verifications are left for the live OTP
func (s *PasswordResetStore) RemainingAttempts(ctx context.Context, userID uuid.UUID) (int, error) {
	if _, err := s.kv.Get(ctx, otpKey(userID)); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return 0, ErrNoOTPFound
		}
		return 0, err
	}

	used := 0
	raw, err := s.kv.Get(ctx, attemptsKey(userID))
	if err == nil {
		used, _ = strconv.Atoi(raw)
	} else if !errors.Is(err, ErrKeyNotFound) {
		return 0, err
	}

	remaining := s.cfg.MaxAttempts - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ConsumeResetToken validates a reset token and invalidates it
func (s *PasswordResetStore) ConsumeResetToken(ctx context.Context, token string) (uuid.UUID, error) {
	if _, err := uuid.Parse(token); err != nil {
		return uuid.Nil, ErrResetTokenInvalid
	}

	raw, err := s.kv.GetDel(ctx, tokenKey(token))
	if errors.Is(err, ErrKeyNotFound) {
		return uuid.Nil, ErrResetTokenInvalid
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load reset token: %w", err)
	}

	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrResetTokenInvalid
	}
	return userID, nil
}

// generateRandomOTP generates a cryptographically secure numeric OTP
func generateRandomOTP(length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
