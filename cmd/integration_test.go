//go:build integration
// +build integration

package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliTestDatabase = "mrp_backup_cli_test"

// TestCLIIntegration drives the built binary against a real MySQL server
func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping CLI integration tests in short mode")
	}

	config := getCLITestConfig(t)
	if config == nil {
		t.Skip("CLI integration test configuration not available")
	}

	binary := buildCLI(t)
	db := setupCLITestDatabase(t, config)

	backupDir := t.TempDir()
	run := func(args ...string) (string, error) {
		full := append([]string{
			"--db-host", config.Host,
			"--db-port", config.Port,
			"--db-username", config.User,
			"--db-password", config.Password,
			"--db-name", cliTestDatabase,
			"--no-color",
		}, args...)
		cmd := exec.Command(binary, full...)
		cmd.Env = append(os.Environ(), "BACKUP_DIRECTORY="+backupDir, "BACKUP_TABLES_AUTO_DISCOVER=true")
		out, err := cmd.CombinedOutput()
		return string(out), err
	}

	t.Run("help", func(t *testing.T) {
		out, err := exec.Command(binary, "--help").CombinedOutput()
		require.NoError(t, err, string(out))
		assert.Contains(t, string(out), "mrp-backup")
		assert.Contains(t, string(out), "Usage:")
	})

	t.Run("version", func(t *testing.T) {
		out, err := exec.Command(binary, "version").CombinedOutput()
		require.NoError(t, err, string(out))
		assert.Contains(t, string(out), "Snapshot format:")
	})

	var fileName string
	t.Run("create and list", func(t *testing.T) {
		out, err := run("backup", "create", "--description", "integration")
		require.NoError(t, err, out)

		out, err = run("backup", "list", "--format", "json")
		require.NoError(t, err, out)

		var snapshots []struct {
			FileName string `json:"file_name"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &snapshots), out)
		require.Len(t, snapshots, 1)
		fileName = snapshots[0].FileName
		assert.FileExists(t, filepath.Join(backupDir, fileName))
	})

	t.Run("verify", func(t *testing.T) {
		require.NotEmpty(t, fileName)
		out, err := run("backup", "verify", fileName)
		require.NoError(t, err, out)
		assert.Contains(t, out, "Backup is valid")
	})

	t.Run("compare after change", func(t *testing.T) {
		require.NotEmpty(t, fileName)
		_, err := db.Exec("UPDATE items SET quantity = quantity + 1 WHERE id = 1")
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO items (id, sku, quantity, created_at) VALUES (3, 'C-3', 7, '2026-03-11 10:00:00')")
		require.NoError(t, err)

		out, err := run("compare", fileName)
		require.NoError(t, err, out)
		assert.Contains(t, out, "items *")
	})

	t.Run("restore", func(t *testing.T) {
		require.NotEmpty(t, fileName)
		out, err := run("restore", fileName, "--auto-approve")
		require.NoError(t, err, out)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
		assert.Equal(t, 2, count)

		var createdAt string
		require.NoError(t, db.QueryRow("SELECT DATE_FORMAT(created_at, '%Y-%m-%d %H:%i:%s') FROM items WHERE id = 1").Scan(&createdAt))
		assert.Equal(t, "2026-03-10 08:30:00", createdAt)

		entries, err := os.ReadDir(backupDir)
		require.NoError(t, err)
		var preRestore bool
		for _, e := range entries {
			if strings.Contains(e.Name(), "pre_restore") {
				preRestore = true
			}
		}
		assert.True(t, preRestore, "restore should leave a PRE_RESTORE backup")
	})

	t.Run("history", func(t *testing.T) {
		out, err := run("history", "--format", "json")
		require.NoError(t, err, out)
		assert.Contains(t, out, "COMPLETED")
	})

	t.Run("unknown backup", func(t *testing.T) {
		_, err := run("backup", "verify", "mrp-backup-20200101-000000.000-manual.bak")
		assert.Error(t, err)
	})
}

type cliTestConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

func getCLITestConfig(t *testing.T) *cliTestConfig {
	config := &cliTestConfig{
		Host:     envOr("MYSQL_TEST_HOST", "localhost"),
		Port:     envOr("MYSQL_TEST_PORT", "3306"),
		User:     envOr("MYSQL_TEST_USER", "root"),
		Password: envOr("MYSQL_TEST_PASSWORD", "password"),
	}

	db, err := sql.Open("mysql", config.dsn("mysql"))
	if err != nil {
		t.Logf("MySQL not available for CLI integration tests: %v", err)
		return nil
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Logf("MySQL not available for CLI integration tests: %v", err)
		return nil
	}
	return config
}

func (c *cliTestConfig) dsn(database string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", c.User, c.Password, c.Host, c.Port, database)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func buildCLI(t *testing.T) string {
	binary := filepath.Join(t.TempDir(), "mrp-backup-test")
	cmd := exec.Command("go", "build", "-o", binary, ".")
	cmd.Dir = ".."
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", out)
	return binary
}

func setupCLITestDatabase(t *testing.T, config *cliTestConfig) *sql.DB {
	admin, err := sql.Open("mysql", config.dsn("mysql"))
	require.NoError(t, err)
	defer admin.Close()

	_, err = admin.Exec("DROP DATABASE IF EXISTS " + cliTestDatabase)
	require.NoError(t, err)
	_, err = admin.Exec("CREATE DATABASE " + cliTestDatabase)
	require.NoError(t, err)

	db, err := sql.Open("mysql", config.dsn(cliTestDatabase))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Exec("DROP DATABASE IF EXISTS " + cliTestDatabase)
		db.Close()
	})

	statements := []string{
		`CREATE TABLE items (
			id INT PRIMARY KEY,
			sku VARCHAR(32) NOT NULL,
			quantity INT NOT NULL,
			received_on DATE NULL,
			created_at DATETIME NOT NULL
		)`,
		`INSERT INTO items (id, sku, quantity, received_on, created_at) VALUES
			(1, 'A-1', 10, '2026-03-09', '2026-03-10 08:30:00'),
			(2, 'B-2', 0, NULL, '2026-03-10 09:15:00')`,
	}
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}
