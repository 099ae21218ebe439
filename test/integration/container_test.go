//go:build integration

package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/inkbook/inkbook/internal/platform/db"
)

const (
	defaultPGImage = "postgres:16-alpine"
	pgUser         = "inkbook"
	pgPassword     = "inkbook"
	pgDatabase     = "inkbook_test"
)

// pgContainer is a throwaway Postgres server run through the docker CLI.
// INKBOOK_TEST_PG_IMAGE overrides the image.
type pgContainer struct {
	id  string
	dsn string
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func startPostgres(ctx context.Context) (*pgContainer, error) {
	image := os.Getenv("INKBOOK_TEST_PG_IMAGE")
	if image == "" {
		image = defaultPGImage
	}

	// -P publishes 5432 on a random host port; --rm removes it on stop.
	id, err := docker(ctx, "run", "-d", "--rm", "-P",
		"--label", "inkbook.integration=true",
		"-e", "POSTGRES_USER="+pgUser,
		"-e", "POSTGRES_PASSWORD="+pgPassword,
		"-e", "POSTGRES_DB="+pgDatabase,
		image,
	)
	if err != nil {
		return nil, err
	}
	c := &pgContainer{id: id}

	mapped, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		c.stop()
		return nil, err
	}
	// One line per address family, e.g. "0.0.0.0:49153".
	first, _, _ := strings.Cut(mapped, "\n")
	_, port, err := net.SplitHostPort(strings.TrimSpace(first))
	if err != nil {
		c.stop()
		return nil, fmt.Errorf("parse mapped port %q: %w", mapped, err)
	}
	c.dsn = fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable", pgUser, pgPassword, port, pgDatabase)

	if err := c.waitReady(ctx, 30*time.Second); err != nil {
		c.stop()
		return nil, err
	}
	return c, nil
}

func (c *pgContainer) stop() {
	_ = exec.Command("docker", "rm", "-f", c.id).Run()
}

// waitReady polls until an authenticated ping succeeds. The image restarts
// the server once after running its init scripts, so the TCP port opening
// is not enough.
func (c *pgContainer) waitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		pool, err := db.NewPool(ctx, c.dsn, 1, 0)
		if err == nil {
			pool.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %s: %w", timeout, err)
		case <-ticker.C:
		}
	}
}
