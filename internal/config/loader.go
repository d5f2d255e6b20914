// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Force the process timezone to UTC.
//  2. Load a .env file via godotenv (a missing file is fine).
//  3. Scan the environment for _SSM_PARAM pointer variables.
//  4. Unless APP_ENV is "local", resolve those pointers through the
//     SecretProvider and inject the values back into the environment.
//  5. Populate Config from envconfig struct tags.
//  6. Attach BuildInfo from linker-injected variables.
//  7. Validate struct tags with go-playground/validator, then the rules
//     that span several fields (see checkTimeouts).
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is the diagnostic error returned by LoadConfig. Type tells the
// caller which loading step failed; Err carries the underlying cause.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks pointer variables: DATABASE_URL_SSM_PARAM names the
// SSM path that resolves DATABASE_URL.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that skips SSM resolution.
const localEnv = "local"

// responseReserve is the part of HTTP_WRITE_TIMEOUT kept back for writing
// the response once the handler context expires.
const responseReserve = time.Second

// loaderDeps holds the environment accessors so tests never touch the
// process environment. Each field matches its os counterpart.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present. Variables already set win.
//  3. Scans the environment for _SSM_PARAM variables.
//  4. If APP_ENV != "local", resolves them via provider and sets the
//     target variables.
//  5. Processes envconfig tags to populate Config.
//  6. Populates Config.Build.
//  7. Validates Config, including the cross-field timeout rule.
//
// provider may be nil for local runs. Outside local it must be non-nil as
// soon as any _SSM_PARAM pointer needs resolving.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

// loadConfigWithDeps is LoadConfig with injectable environment access.
func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv.Load does not override variables that are already set.
	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := checkTimeouts(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// checkTimeouts verifies that a content request can time out before the
// HTTP handler context does. The handler runs under HTTP_WRITE_TIMEOUT
// minus responseReserve; a content request that outlives it surfaces as a
// cancelled request instead of a content timeout.
func checkTimeouts(cfg *Config) error {
	budget := cfg.Server.WriteTimeout - responseReserve
	if cfg.Mailbox.ContentRequestTimeout >= budget {
		return &ConfigError{
			Type: ErrValidation,
			Message: fmt.Sprintf("CONTENT_REQUEST_TIMEOUT (%s) must be shorter than HTTP_WRITE_TIMEOUT minus %s (%s)",
				cfg.Mailbox.ContentRequestTimeout, responseReserve, budget),
		}
	}
	return nil
}

// resolveSSMParams scans the environment for variables ending in
// _SSM_PARAM, fetches the values they point at through provider, and injects
// them so envconfig can process them.
//
// For example, with DATABASE_URL_SSM_PARAM=/prod/postoffice/database/url:
//  1. The SSM path is /prod/postoffice/database/url.
//  2. The target variable is DATABASE_URL.
//  3. provider fetches the value in one batch with every other pointer.
//  4. DATABASE_URL is set to the resolved value.
//
// A target that is already set is left alone, which keeps the priority
// chain OS environment > dotenv > SSM. A pointer whose path SSM does not
// know fails the load rather than leaving the variable empty.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	pathToTarget := make(map[string]string)

	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		pathToTarget[path] = target
	}

	if len(pathToTarget) == 0 {
		return nil
	}

	paths := make([]string, 0, len(pathToTarget))
	for p := range pathToTarget {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if provider == nil {
		targets := make([]string, 0, len(paths))
		for _, p := range paths {
			targets = append(targets, pathToTarget[p])
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range paths {
		value, ok := resolved[p]
		if !ok {
			missing = append(missing, pathToTarget[p])
			continue
		}
		if err := deps.setEnv(pathToTarget[p], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", pathToTarget[p]),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
