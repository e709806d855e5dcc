//go:build mage

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"paycore/internal/platform/config"
	"paycore/internal/platform/db"
)

var Default = Build

// Tidy runs go mod tidy.
func Tidy() error {
	fmt.Println(">> go mod tidy")
	return sh.Run("go", "mod", "tidy")
}

// Vet runs go vet on every package.
func Vet() error {
	fmt.Println(">> go vet ./...")
	return sh.RunV("go", "vet", "./...")
}

// Test runs the unit tests with the race detector.
func Test() error {
	fmt.Println(">> go test -race ./...")
	return sh.RunV("go", "test", "-race", "./...")
}

// Build vets then compiles to ./bin/paycore-server.
func Build() error {
	mg.Deps(Vet)
	fmt.Println(">> Building server binary...")
	return sh.Run("go", "build", "-o", "bin/paycore-server", "./cmd/server")
}

// Run builds then executes the binary.
func Run() error {
	mg.Deps(Build)
	return sh.RunV("./bin/paycore-server")
}

// Migrate applies pending SQL migrations using DATABASE_URL from the
// environment or .env.
func Migrate() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	fmt.Printf(">> %d migration(s) applied\n", applied)
	return nil
}
