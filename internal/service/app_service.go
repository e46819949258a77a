package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Faizanmal/SyncQuote-sub003/internal/domain"
	"github.com/Faizanmal/SyncQuote-sub003/internal/repository"
	"github.com/Faizanmal/SyncQuote-sub003/internal/secret"
)

const clientSecretBytes = 32

// AppService manages client application registrations. All operations are
// scoped to the owning user; an app owned by someone else behaves as if it
// does not exist.
type AppService struct {
	apps      repository.AppRepository
	codes     repository.CodeRepository
	tokens    repository.TokenRepository
	snowflake *snowflake.Node
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAppService wires dependencies.
func NewAppService(apps repository.AppRepository, codes repository.CodeRepository, tokens repository.TokenRepository, node *snowflake.Node, logger *zap.Logger) *AppService {
	return &AppService{
		apps:      apps,
		codes:     codes,
		tokens:    tokens,
		snowflake: node,
		logger:    logger,
		tracer:    otel.Tracer("github.com/Faizanmal/SyncQuote-sub003/internal/service"),
	}
}

// Create registers a new app and returns it together with the plaintext
// client secret. The secret is never recoverable afterwards; only its
// digest is stored.
func (s *AppService) Create(ctx context.Context, ownerUserID int64, name, redirectURI string) (domain.App, string, error) {
	ctx, span := s.tracer.Start(ctx, "AppService.Create")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.App{}, "", errInvalidRequest("name is required.")
	}
	redirect := strings.TrimSpace(redirectURI)
	if err := validateRedirectURI(redirect); err != nil {
		return domain.App{}, "", err
	}

	plaintextSecret := secret.NewToken(clientSecretBytes)
	app := domain.App{
		ID:               s.snowflake.Generate().Int64(),
		OwnerUserID:      ownerUserID,
		Name:             name,
		ClientID:         uuid.NewString(),
		ClientSecretHash: secret.Hash(plaintextSecret),
		RedirectURI:      redirect,
		IsActive:         true,
	}

	created, err := s.apps.Create(ctx, app)
	if err != nil {
		span.RecordError(err)
		return domain.App{}, "", fmt.Errorf("persist app: %w", err)
	}

	s.audit("app.created", zap.Int64("app_id", created.ID), zap.Int64("owner_user_id", ownerUserID), zap.String("client_id", created.ClientID))
	return created, plaintextSecret, nil
}

// List returns all apps owned by the user.
func (s *AppService) List(ctx context.Context, ownerUserID int64) ([]domain.App, error) {
	return s.apps.ListByOwner(ctx, ownerUserID)
}

// Get returns one owned app, or not_found when absent or owned by another
// user.
func (s *AppService) Get(ctx context.Context, ownerUserID, appID int64) (domain.App, error) {
	app, err := s.apps.GetByID(ctx, appID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.App{}, errNotFound()
		}
		return domain.App{}, fmt.Errorf("load app: %w", err)
	}
	if app.OwnerUserID != ownerUserID {
		return domain.App{}, errNotFound()
	}
	return app, nil
}

// Delete removes an owned app and cascades: every outstanding token for the
// app is revoked and every outstanding code discarded before the record is
// dropped.
func (s *AppService) Delete(ctx context.Context, ownerUserID, appID int64) error {
	ctx, span := s.tracer.Start(ctx, "AppService.Delete")
	defer span.End()

	app, err := s.Get(ctx, ownerUserID, appID)
	if err != nil {
		return err
	}

	if err := s.tokens.RevokeByApp(ctx, app.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke app tokens: %w", err)
	}
	if err := s.codes.DeleteByApp(ctx, app.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("discard app codes: %w", err)
	}
	if err := s.apps.Delete(ctx, app.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete app: %w", err)
	}

	s.audit("app.deleted", zap.Int64("app_id", app.ID), zap.Int64("owner_user_id", ownerUserID))
	return nil
}

// RegenerateSecret replaces the client secret and returns the new plaintext
// once. The previous secret is unusable from this point on; the client_id
// is unchanged.
func (s *AppService) RegenerateSecret(ctx context.Context, ownerUserID, appID int64) (string, error) {
	ctx, span := s.tracer.Start(ctx, "AppService.RegenerateSecret")
	defer span.End()

	app, err := s.Get(ctx, ownerUserID, appID)
	if err != nil {
		return "", err
	}

	plaintextSecret := secret.NewToken(clientSecretBytes)
	if err := s.apps.UpdateSecretHash(ctx, app.ID, secret.Hash(plaintextSecret)); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("rotate app secret: %w", err)
	}

	s.audit("app.secret_rotated", zap.Int64("app_id", app.ID), zap.Int64("owner_user_id", ownerUserID))
	return plaintextSecret, nil
}

func (s *AppService) audit(event string, fields ...zap.Field) {
	logger := s.logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("audit", append([]zap.Field{zap.String("event", event)}, fields...)...)
}

func validateRedirectURI(redirect string) error {
	if redirect == "" {
		return errInvalidRequest("redirect_uri is required.")
	}
	parsed, err := url.Parse(redirect)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return errInvalidRequest("redirect_uri must be an absolute URL.")
	}
	if parsed.Fragment != "" {
		return errInvalidRequest("redirect_uri must not contain a fragment.")
	}
	return nil
}
