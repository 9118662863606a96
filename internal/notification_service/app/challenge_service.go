package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
)

const challengeBodyFormat = "Your verification code is %s"

// ChallengeConfig holds the ChallengeService's tunables.
type ChallengeConfig struct {
	TTL         time.Duration
	CodeLength  int
	MaxAttempts int
}

type challengeEntry struct {
	hash     []byte
	attempts int
}

// ChallengeServiceOption configures a ChallengeService.
type ChallengeServiceOption func(*ChallengeService)

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) ChallengeServiceOption {
	return func(s *ChallengeService) { s.cost = cost }
}

// ChallengeService sends one-time codes and verifies them. Only bcrypt hashes
// of the codes are kept, in an expiring in-process cache.
type ChallengeService struct {
	dispatcher MessageDispatcher
	cfg        ChallengeConfig
	cost       int
	codes      *cache.Cache
	mu         sync.Mutex // serializes Verify per service so attempts are counted exactly
	logger     *slog.Logger
}

func NewChallengeService(dispatcher MessageDispatcher, cfg ChallengeConfig, logger *slog.Logger, opts ...ChallengeServiceOption) *ChallengeService {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	s := &ChallengeService{
		dispatcher: dispatcher,
		cfg:        cfg,
		cost:       bcrypt.DefaultCost,
		codes:      cache.New(cfg.TTL, time.Minute),
		logger:     logger.With("component", "challenge_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sends a fresh code to recipient, replacing any outstanding one.
// The code is remembered only if the dispatch succeeded.
func (s *ChallengeService) Start(ctx context.Context, recipient string) (domain.Outcome, error) {
	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return domain.Outcome{Recipient: recipient}, fmt.Errorf("failed to generate verification code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return domain.Outcome{Recipient: recipient}, fmt.Errorf("failed to hash verification code: %w", err)
	}

	// The message log keeps a masked copy; only the bcrypt hash can check the code.
	outcome, err := s.dispatcher.Send(ctx, recipient, fmt.Sprintf(challengeBodyFormat, code), SendOptions{
		LoggedBody: fmt.Sprintf(challengeBodyFormat, strings.Repeat("*", len(code))),
	})
	if err != nil {
		challengesTotal.WithLabelValues("start", "error").Inc()
		return outcome, err
	}
	if !outcome.Success {
		challengesTotal.WithLabelValues("start", "failed").Inc()
		s.logger.WarnContext(ctx, "Verification code not sent", "recipient", recipient, "reason", outcome.ErrorReason)
		return outcome, nil
	}

	s.codes.Set(recipient, &challengeEntry{hash: hash}, cache.DefaultExpiration)
	challengesTotal.WithLabelValues("start", "sent").Inc()
	s.logger.InfoContext(ctx, "Verification code sent", "recipient", recipient, "message_id", outcome.MessageID)
	return outcome, nil
}

// Verify checks code against the outstanding challenge for recipient. A correct
// code consumes the challenge; so does running out of attempts.
func (s *ChallengeService) Verify(ctx context.Context, recipient, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.codes.Get(recipient)
	if !ok {
		challengesTotal.WithLabelValues("verify", "not_found").Inc()
		return domain.ErrChallengeNotFound
	}
	entry := v.(*challengeEntry)

	err := bcrypt.CompareHashAndPassword(entry.hash, []byte(code))
	if err == nil {
		s.codes.Delete(recipient)
		challengesTotal.WithLabelValues("verify", "ok").Inc()
		s.logger.InfoContext(ctx, "Verification code accepted", "recipient", recipient)
		return nil
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("failed to compare verification code: %w", err)
	}

	entry.attempts++
	if entry.attempts >= s.cfg.MaxAttempts {
		s.codes.Delete(recipient)
		challengesTotal.WithLabelValues("verify", "exhausted").Inc()
		s.logger.WarnContext(ctx, "Verification attempts exhausted", "recipient", recipient, "attempts", entry.attempts)
		return domain.ErrChallengeAttemptsExhausted
	}
	challengesTotal.WithLabelValues("verify", "mismatch").Inc()
	return domain.ErrChallengeMismatch
}

// Pending reports the number of unexpired challenges.
func (s *ChallengeService) Pending() int {
	return s.codes.ItemCount()
}

func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
