package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Faizanmal/SyncQuote-sub003/internal/config"
	"github.com/Faizanmal/SyncQuote-sub003/internal/domain"
	"github.com/Faizanmal/SyncQuote-sub003/internal/password"
	"github.com/Faizanmal/SyncQuote-sub003/internal/repository"
)

// EnsureAdmin seeds a default admin user for dev/e2e when configured and
// missing.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
				return nil
			}

			email := strings.ToLower(cfg.AdminEmail)
			if _, err := users.GetByEmail(ctx, email); err == nil {
				return nil
			} else if !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("lookup admin user: %w", err)
			}

			hash, err := password.Hash(cfg.AdminPassword)
			if err != nil {
				return fmt.Errorf("hash admin password: %w", err)
			}

			user := domain.User{
				ID:           node.Generate().Int64(),
				Email:        email,
				PasswordHash: hash,
				Name:         "Admin",
			}
			if _, err := users.Create(ctx, user); err != nil {
				return fmt.Errorf("create admin user: %w", err)
			}

			logger.Info("admin user created", zap.String("email", email))
			return nil
		},
	})
}
