package database

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Migration struct {
	Id   int
	Name string
	Sql  string
}

// Executor is the subset of pgx operations the migration runner needs.
// Both *pgxpool.Pool and pgx.Tx satisfy it.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpdateDatabase applies, in order, every migration with an id greater than
// the version currently recorded in the database.
func UpdateDatabase(ctx context.Context, db Executor, migrations []Migration) error {
	log.Info("Updating postgres...")
	version, err := readVersion(ctx, db)
	if err != nil {
		return err
	}
	log.Infof("Current version %v", version)

	for _, m := range migrations {
		if m.Id > version {
			log.Infof("Applying migration %d: %s", m.Id, m.Name)
			if _, err := db.Exec(ctx, m.Sql); err != nil {
				return errors.WithMessagef(err, "error applying migration %s", m.Name)
			}
			version = m.Id
			if err := setVersion(ctx, db, version); err != nil {
				return err
			}
		}
	}
	log.Info("Database updated.")
	return nil
}

func readVersion(ctx context.Context, db Executor) (int, error) {
	_, err := db.Exec(ctx,
		`CREATE SEQUENCE IF NOT EXISTS database_version START WITH 0 MINVALUE 0;`)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	var version int
	err = db.QueryRow(ctx, `SELECT last_value FROM database_version`).Scan(&version)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return version, nil
}

func setVersion(ctx context.Context, db Executor, version int) error {
	_, err := db.Exec(ctx, `SELECT setval('database_version', $1)`, version)
	return errors.WithStack(err)
}

// GetMigrations loads migrations from an embedded filesystem. Files must be
// named <id>_<name>.sql; they are applied in ascending id order.
func GetMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		idString, _, found := strings.Cut(name, "_")
		if !found {
			return nil, errors.Errorf("migration file name %q is missing an id prefix", name)
		}
		id, err := strconv.Atoi(idString)
		if err != nil {
			return nil, errors.WithMessagef(err, "cannot parse migration id from %q", name)
		}
		sql, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		migrations = append(migrations, Migration{
			Id:   id,
			Name: name,
			Sql:  string(sql),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Id < migrations[j].Id })
	return migrations, nil
}
