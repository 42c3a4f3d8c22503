package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobpilot/internal/auth"
	"github.com/spigell/jobpilot/internal/portal"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the portal account behind the configured token",
	Run: func(cmd *cobra.Command, _ []string) {
		whoami(cmd)
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func whoami(cmd *cobra.Command) {
	logger, config := setup("")

	token, err := tokenSource(config).Token()
	if err != nil {
		logger.Fatal("loading portal token", zap.Error(err),
			zap.String("hint", "set JOBPILOT_TOKEN_FILE or JOBPILOT_TOKEN, or the 'token-file' key in the configuration file"))
	}

	if claims, err := auth.Inspect(token); err == nil {
		fields := []zap.Field{zap.String("subject", claims.Subject), zap.String("role", claims.Role)}
		if !claims.ExpiresAt.IsZero() {
			fields = append(fields, zap.Time("expires at", claims.ExpiresAt))
		}
		logger.Info("token claims", fields...)
	} else {
		logger.Debug("token is not a jwt", zap.Error(err))
	}

	if err := auth.CheckToken(token, time.Now()); err != nil {
		logger.Warn("token will be rejected", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	client := portal.New(logger, config.Server)
	if config.UserAgent != "" {
		client.UserAgent = config.UserAgent
	}

	user, err := client.Me(ctx, token)
	if err != nil {
		logger.Fatal("getting current user", zap.Error(err))
	}

	logger.Info("logged in",
		zap.String("id", user.ID),
		zap.String("username", user.Username),
		zap.String("email", user.Email),
		zap.String("role", user.Role),
	)
}
