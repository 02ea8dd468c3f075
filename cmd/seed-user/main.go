package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/agent-builder/fluid-api/internal/config"
	"github.com/bizmatters/agent-builder/fluid-api/internal/history"
	"github.com/bizmatters/agent-builder/fluid-api/internal/logging"
	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

const (
	// MinPasswordLength is the minimum password length requirement
	MinPasswordLength = 8
	// BcryptCost is the cost factor for bcrypt hashing (10 = ~100ms)
	BcryptCost = 10
)

var (
	emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	hasLetter  = regexp.MustCompile(`[a-zA-Z]`)
	hasNumber  = regexp.MustCompile(`[0-9]`)
)

func main() {
	name := flag.String("name", "", "Full name of the operator (required)")
	email := flag.String("email", "", "Email address (required)")
	password := flag.String("password", "", "Password (required, min 8 chars)")
	roles := flag.String("roles", models.RoleOperator, "Comma-separated roles (operator, admin)")
	flag.Parse()

	logger, flush, err := logging.New(logging.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer flush()

	user, err := newUser(*name, *email, *password, *roles)
	if err != nil {
		logger.Fatal("validation error", zap.Error(err))
	}

	if err := config.LoadDotEnv("."); err != nil {
		logger.Fatal("failed to load environment", zap.Error(err))
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}

	store := history.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}

	if err := createUser(ctx, store, user); err != nil {
		logger.Fatal("failed to create user", zap.Error(err))
	}

	logger.Info("successfully created user",
		zap.String("id", user.ID),
		zap.String("name", user.Name),
		zap.String("email", user.Email),
		zap.Strings("roles", user.Roles),
	)
}

// newUser validates the flags and builds the user with a hashed password
func newUser(name, email, password, roles string) (*models.User, error) {
	if err := validateInputs(name, email, password); err != nil {
		return nil, err
	}

	parsedRoles, err := parseRoles(roles)
	if err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &models.User{
		Name:           strings.TrimSpace(name),
		Email:          strings.ToLower(strings.TrimSpace(email)),
		HashedPassword: string(hashedPassword),
		Roles:          parsedRoles,
	}, nil
}

// validateInputs validates user input according to security requirements
func validateInputs(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required and cannot be empty")
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}

	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if !hasLetter.MatchString(password) || !hasNumber.MatchString(password) {
		return fmt.Errorf("password must contain at least one letter and one number")
	}

	return nil
}

func parseRoles(raw string) ([]string, error) {
	var roles []string
	for _, role := range strings.Split(raw, ",") {
		role = strings.ToLower(strings.TrimSpace(role))
		switch role {
		case "":
			continue
		case models.RoleOperator, models.RoleAdmin:
			roles = append(roles, role)
		default:
			return nil, fmt.Errorf("unknown role %q", role)
		}
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role is required")
	}
	return roles, nil
}

func createUser(ctx context.Context, store history.UserStore, user *models.User) error {
	ctx, span := otel.Tracer("seed-user").Start(ctx, "create_user")
	defer span.End()

	if err := store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, history.ErrDuplicateUser) {
			return fmt.Errorf("user with email %s already exists", user.Email)
		}
		return err
	}
	return nil
}
