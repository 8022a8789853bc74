package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"omnichat/internal/entities"
	"omnichat/internal/repository"
)

// AuthUsecase issues and checks management API credentials. Channel end
// users are never authenticated here; that belongs to the surrounding
// services.
type AuthUsecase struct {
	operatorRepo *repository.OperatorRepository
	jwtSecret    []byte
}

func NewAuthUsecase(repo *repository.OperatorRepository, secret string) *AuthUsecase {
	return &AuthUsecase{
		operatorRepo: repo,
		jwtSecret:    []byte(secret),
	}
}

func (uc *AuthUsecase) Register(ctx context.Context, username, password string) error {
	existing, err := uc.operatorRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.New("username already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	op := &entities.Operator{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         "operator",
	}

	return uc.operatorRepo.Create(ctx, op)
}

func (uc *AuthUsecase) Login(ctx context.Context, username, password string) (string, error) {
	op, err := uc.operatorRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if op == nil {
		return "", errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"operator_id": op.ID,
		"role":        op.Role,
		"exp":         time.Now().Add(time.Hour * 24).Unix(),
	})

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return tokenString, nil
}

// EnsureAdmin creates a root operator if none exists (called on startup)
func (uc *AuthUsecase) EnsureAdmin(ctx context.Context, username, password string) error {
	op, err := uc.operatorRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if op == nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin := &entities.Operator{
			Username:     username,
			PasswordHash: string(hashed),
			Role:         "admin",
		}
		return uc.operatorRepo.Create(ctx, admin)
	}
	return nil
}
