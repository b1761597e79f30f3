// Package pgtest starts a throwaway PostgreSQL for integration tests.
//
// Set TEST_DATABASE_URL to reuse an existing database instead of starting a
// postgres:14 container through the docker CLI.
package pgtest

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

const image = "postgres:14"

// Database is a reachable test database.
type Database struct {
	DSN  string
	Pool *pgxpool.Pool

	containerID string
}

// Start returns a connected database named name. The caller must Close it.
func Start(ctx context.Context, name string) (*Database, error) {
	db := &Database{DSN: os.Getenv("TEST_DATABASE_URL")}
	if db.DSN == "" {
		if err := db.run(name); err != nil {
			return nil, err
		}
	}

	var err error
	for i := 0; i < 20; i++ {
		db.Pool, err = pgxpool.Connect(ctx, db.DSN)
		if err == nil {
			if err = db.Pool.Ping(ctx); err == nil {
				return db, nil
			}
			db.Pool.Close()
		}
		log.Printf("waiting for %s (attempt %d): %v", name, i+1, err)
		time.Sleep(time.Second)
	}
	db.stop()
	return nil, fmt.Errorf("database %s never became ready: %w", name, err)
}

// run publishes the container on a free loopback port.
func (d *Database) run(name string) error {
	out, err := docker("run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_DB="+name,
		"-e", "POSTGRES_USER=test",
		"-e", "POSTGRES_PASSWORD=test",
		image,
	)
	if err != nil {
		return fmt.Errorf("start %s container (is docker running?): %w", image, err)
	}
	d.containerID = out

	addr, err := docker("port", d.containerID, "5432/tcp")
	if err != nil {
		d.stop()
		return fmt.Errorf("resolve container port: %w", err)
	}
	// docker may list an IPv6 binding too
	addr = strings.SplitN(addr, "\n", 2)[0]
	d.DSN = fmt.Sprintf("postgres://test:test@%s/%s?sslmode=disable", addr, name)
	return nil
}

// Truncate empties tables between tests.
func (d *Database) Truncate(ctx context.Context, tables ...string) error {
	_, err := d.Pool.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
	return err
}

func (d *Database) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
	d.stop()
}

func (d *Database) stop() {
	if d.containerID == "" {
		return
	}
	if _, err := docker("stop", d.containerID); err != nil {
		log.Printf("could not stop container %s: %v", d.containerID, err)
	}
	d.containerID = ""
}

func docker(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command("docker", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
