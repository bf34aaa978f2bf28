package store

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the connection pool and exposes repositories for every
// aggregate in §3. Repositories share the pool; each operation opens
// its own transaction where atomicity is required.
type DB struct {
	Pool *pgxpool.Pool

	Patients    *PatientRepo
	Studies     *StudyRepo
	Series      *SeriesRepo
	RecordTypes *RecordTypeRepo
	Records     *RecordRepo
	Users       *UserRepo
	Sessions    *SessionRepo
}

// Open connects to Postgres and applies the embedded schema.
func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("[store] connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("[store] ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("[store] apply schema: %w", err)
	}

	log.Printf("[store] connected and schema applied")

	db := &DB{Pool: pool}
	db.Patients = &PatientRepo{pool: pool}
	db.Studies = &StudyRepo{pool: pool}
	db.Series = &SeriesRepo{pool: pool}
	db.RecordTypes = &RecordTypeRepo{pool: pool}
	db.Records = &RecordRepo{pool: pool, db: db}
	db.Users = &UserRepo{pool: pool}
	db.Sessions = &SessionRepo{pool: pool}
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.Pool.Close()
}
