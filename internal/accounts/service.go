package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/bestshop/bestshop/internal/password"
	"github.com/bestshop/bestshop/internal/shared"
)

// Notifier dispatches outbound transactional email. Implementations own
// transport details; the service only needs success or failure.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// ServiceConfig tunes token lifetimes and outbound links.
type ServiceConfig struct {
	BaseURL              string
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration
}

// Service implements the credential and token lifecycle workflows.
type Service struct {
	logger     *slog.Logger
	repo       Repository
	hasher     *password.Hasher
	notifier   Notifier
	cfg        ServiceConfig
	validate   *validator.Validate
	resetGroup singleflight.Group
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo Repository, hasher *password.Hasher, notifier Notifier, cfg ServiceConfig) *Service {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 24 * time.Hour
	}
	if cfg.VerificationTokenTTL <= 0 {
		cfg.VerificationTokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:   logger,
		repo:     repo,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// validationError flattens validator output into a caller-facing error.
func validationError(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(details, "; "))
}
