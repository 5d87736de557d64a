// Command example wires pgaudit.NewLogger against a local PostgreSQL
// database, in the same environment-variable configuration style the
// teacher's cmd/main.go uses for the rest of its connection settings.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/lattice-data/pgaudit"
	"github.com/lattice-data/pgaudit/auditctx"
	"github.com/lattice-data/pgaudit/internal/plog"
)

func main() {
	logLevel := getEnv("LOG_LEVEL", "info")
	plog.Initialize(logLevel, getEnv("LOG_PRETTY", "true") == "true")

	dsn := getEnv("DATABASE_URL", "postgres://localhost:5432/app?sslmode=disable")

	log.Println("Connecting to database...")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	auditLogger, err := pgaudit.NewLogger(db, pgaudit.Config{
		Tables: []string{"users", "orders"},
		TableConfigMap: map[string]pgaudit.TableConfig{
			"users":  {PrimaryKey: []string{"id"}},
			"orders": {PrimaryKey: []string{"id"}},
		},
		StrictMode:       getEnv("AUDIT_STRICT", "false") == "true",
		WaitForWrite:     getEnv("AUDIT_WAIT_FOR_WRITE", "false") == "true",
		UpdateValuesMode: pgaudit.UpdateValuesChanged,
		BatchSize:        getEnvInt("AUDIT_BATCH_SIZE", 100),
		FlushInterval:    time.Duration(getEnvInt("AUDIT_FLUSH_INTERVAL_MS", 5000)) * time.Millisecond,
		MaxQueueSize:     getEnvInt("AUDIT_MAX_QUEUE_SIZE", 10000),
		GetUserID:        func() string { return "" },
	})
	if err != nil {
		log.Fatalf("failed to initialize audit logger: %v", err)
	}

	ctx := auditctx.WithContext(context.Background(), auditctx.Context{
		UserID:    "system",
		IPAddress: "127.0.0.1",
	})

	// Example audited INSERT: runs through auditLogger.DB() instead of a
	// raw squirrel statement, so it gets captured automatically.
	res, err := auditLogger.DB().Insert("users").
		Columns("email", "name").
		Values("a@example.com", "A").
		Exec(ctx)
	if err != nil {
		log.Printf("insert failed: %v", err)
	} else if res.Result != nil {
		n, _ := res.Result.RowsAffected()
		log.Printf("inserted %d row(s)", n)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down audit logger...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := auditLogger.Shutdown(shutdownCtx); err != nil {
		log.Printf("audit logger shutdown error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
