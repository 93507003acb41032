package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if e == nil || e.passwordHash == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if err := validateEmail(email); err != nil {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "invalid_email",
			}
		})
		return nil, err
	}

	if err := e.passwordPolicy.Check(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	roles := input.Roles
	if len(roles) == 0 {
		roles = []string{e.config.Account.DefaultRole}
	}
	for _, role := range roles {
		if _, err := e.roles.GetRole(ctx, role); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, role)
		}
	}

	passwordHash, err := e.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	input.Password = ""

	created, err := e.users.Create(ctx, CreateUserInput{
		ID:            uuid.NewString(),
		Email:         email,
		Name:          strings.TrimSpace(input.Name),
		PasswordHash:  passwordHash,
		Roles:         roles,
		EmailVerified: !e.config.EmailVerification.Enabled,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventAccountCreationDuplicate, false, "", "", "", ErrAccountExists, func() map[string]string {
				return map[string]string{
					"identifier": email,
				}
			})
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result := &RegisterResult{
		Profile: profileFromUser(created),
	}

	if e.config.EmailVerification.Enabled && !created.EmailVerified && e.verificationStore != nil {
		// Mint the verification challenge here so a new account never
		// exists without a redeemable token.
		challenge, err := e.mintVerificationChallenge(ctx, created.ID)
		if err != nil {
			e.emitAudit(ctx, auditEventAccountCreationFailure, false, created.ID, created.ID, "", err, func() map[string]string {
				return map[string]string{
					"identifier": email,
					"reason":     "verification_mint_failed",
				}
			})
			return result, err
		}
		result.VerificationChallenge = challenge
		e.metricInc(MetricEmailVerificationRequest)
	}

	if e.config.Account.AutoLogin {
		if !e.config.EmailVerification.RequireForLogin || created.EmailVerified {
			tokens, _, err := e.createSession(ctx, created)
			if err != nil {
				e.emitAudit(ctx, auditEventAccountCreationFailure, false, created.ID, created.ID, "", err, func() map[string]string {
					return map[string]string{
						"identifier": email,
						"reason":     "auto_login_failed",
					}
				})
				return result, err
			}
			result.Tokens = &tokens
			e.metricInc(MetricSessionCreated)
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventAccountCreationSuccess, true, created.ID, created.ID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": email,
			"roles":      strings.Join(roles, ","),
		}
	})

	return result, nil
}

// LinkExternalUser describes the linkexternaluser operation and its observable behavior.
//
// LinkExternalUser may return an error when input validation, dependency calls, or security checks fail.
// LinkExternalUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LinkExternalUser(ctx context.Context, input ExternalLinkInput) (*Profile, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	if input.Provider == "" || input.ExternalID == "" {
		return nil, fmt.Errorf("%w: provider and external id required", ErrValidation)
	}
	email := normalizeEmail(input.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	existing, err := e.users.GetByEmail(ctx, email)
	if err == nil && existing.DeletedAt == nil {
		if existing.ExternalProvider == input.Provider && existing.ExternalID == input.ExternalID {
			profile := profileFromUser(existing)
			return &profile, nil
		}
		return nil, ErrAccountExists
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	created, err := e.users.Create(ctx, CreateUserInput{
		ID:               uuid.NewString(),
		Email:            email,
		Name:             strings.TrimSpace(input.Name),
		Roles:            []string{e.config.Account.DefaultRole},
		EmailVerified:    input.EmailVerified,
		ExternalProvider: input.Provider,
		ExternalID:       input.ExternalID,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventExternalAccountLinked, true, created.ID, created.ID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": email,
			"provider":   input.Provider,
		}
	})

	profile := profileFromUser(created)
	return &profile, nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email required", ErrValidation)
	}
	if len(email) > 254 {
		return fmt.Errorf("%w: email too long", ErrValidation)
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return fmt.Errorf("%w: malformed email", ErrValidation)
	}
	return nil
}
