package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/portal/internal/logging"
)

// Demo accounts created by SeedDemo.
const (
	DemoAdminUsername   = "admin"
	DemoAdminPassword   = "admin123"
	DemoStudentUsername = "student1"
	DemoStudentPassword = "student1"
)

// ProvisionAdmin creates an admin identity at the next free id.
func (s *Service) ProvisionAdmin(ctx context.Context, username, email, password string) (Identity, error) {
	return s.provision(ctx, Identity{
		Username: username,
		Email:    email,
		Role:     RoleAdmin,
	}, password)
}

// provision creates identity at max(id)+1 with a hashed password.
func (s *Service) provision(ctx context.Context, identity Identity, password string) (Identity, error) {
	identity.Username = strings.TrimSpace(identity.Username)
	identity.Email = strings.TrimSpace(identity.Email)
	if identity.Username == "" || password == "" {
		return Identity{}, errors.New("username and password are required")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}
	identity.PasswordHash = hash

	var created Identity
	err = s.store.WithTx(ctx, func(q Queries) error {
		_, err := q.GetIdentityByUsername(ctx, identity.Username)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrUsernameTaken, identity.Username)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		identity.ID, err = nextIdentityID(ctx, q)
		if err != nil {
			return err
		}

		created, err = q.CreateIdentity(ctx, identity)
		return err
	})
	if err != nil {
		return Identity{}, err
	}

	logging.FromContext(ctx).Info("identity provisioned",
		"id", created.ID,
		"username", created.Username,
		"role", created.Role,
	)
	return created, nil
}

// SeedDemo creates the demo admin and student with two results. Accounts
// that already exist are left untouched. It returns the number of
// identities created.
func (s *Service) SeedDemo(ctx context.Context) (int, error) {
	created := 0

	if _, err := s.ProvisionAdmin(ctx, DemoAdminUsername, "admin@school.edu", DemoAdminPassword); err == nil {
		created++
	} else if !errors.Is(err, ErrUsernameTaken) {
		return created, fmt.Errorf("seed admin: %w", err)
	}

	student, err := s.provision(ctx, Identity{
		Username:    DemoStudentUsername,
		Email:       DemoStudentUsername + "@school.edu",
		Role:        RoleStudent,
		DisplayName: "Demo Student",
	}, DemoStudentPassword)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return created, nil
	case err != nil:
		return created, fmt.Errorf("seed student: %w", err)
	}
	created++

	err = s.store.WithTx(ctx, func(q Queries) error {
		for _, sc := range []ScoreRecord{
			{StudentID: student.ID, Subject: "Mathematics", Mark: 85},
			{StudentID: student.ID, Subject: "Science", Mark: 92},
		} {
			if _, err := q.CreateScore(ctx, sc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return created, fmt.Errorf("seed results: %w", err)
	}

	return created, nil
}
