package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/internal/telemetry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fieldPath(fe), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if _, ok := logger.ParseLevel(cfg.Logging.Level); !ok {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.Environment.IsProduction() && cfg.Auth.Secret == "" {
		return errors.New("auth.secret is required in production (set MINISERVER_AUTH_SECRET)")
	}

	for _, name := range cfg.Telemetry.Profiling.ProfileTypes {
		if !telemetry.ValidProfileType(name) {
			return fmt.Errorf("telemetry.profiling.profile_types: unknown profile type %q", name)
		}
	}
	return nil
}

// fieldPath renders a validator namespace without the root type name.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
