package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
)

const (
	BootstrapAdminUsername = "admin"
	DemoUsername           = "user"
	demoPassword           = "user123"
)

// BootstrapAdmin creates an initial admin user when none exists.
// It is idempotent: if an admin already exists, it does nothing.
func BootstrapAdmin(ctx context.Context, repo UserStore, hasher PasswordHasher, cfg Config) error {
	if !cfg.BootstrapAdminEnabled {
		return nil
	}

	has, err := repo.HasAdmin(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	password := cfg.InitialAdminPassword
	generated := password == ""
	if generated {
		if password, err = generatePassword(24); err != nil {
			return err
		}
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	ok, err := repo.Insert(ctx, BootstrapAdminUsername, hash, "Administrator", RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bootstrap admin: username %q is taken by a non-admin account", BootstrapAdminUsername)
	}

	switch {
	case !generated:
		log.Printf("initial admin created username=%s (configured password)", BootstrapAdminUsername)
	case cfg.InitialAdminPasswordPath != "":
		if err := os.WriteFile(cfg.InitialAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Printf("initial admin created; credentials written to %s", cfg.InitialAdminPasswordPath)
	default:
		log.Printf("initial admin created username=%s password=%s", BootstrapAdminUsername, password)
	}
	return nil
}

// SeedDemoUser creates the user/user123 account when cfg.SeedDemoUser is set and it is missing.
func SeedDemoUser(ctx context.Context, repo CredentialStore, hasher PasswordHasher, cfg Config) error {
	if !cfg.SeedDemoUser {
		return nil
	}
	exists, err := repo.ExistsByUsername(ctx, DemoUsername)
	if err != nil || exists {
		return err
	}
	hash, err := hasher.Hash(demoPassword)
	if err != nil {
		return err
	}
	if _, err := repo.Insert(ctx, DemoUsername, hash, "Demo User", RoleUser); err != nil {
		return err
	}
	log.Printf("demo user created username=%s", DemoUsername)
	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
