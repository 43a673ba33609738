package main

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/rayattack/amebo/internal/ameboerr"
	"github.com/rayattack/amebo/internal/config"
	"github.com/rayattack/amebo/internal/store"
	"github.com/rayattack/amebo/internal/vault"
)

// bootstrapAdmin upserts the AMEBO_USERNAME/AMEBO_PASSWORD administrator
// credentials at startup, hashing the password, per spec.md §6. A blank
// AMEBO_USERNAME skips bootstrap entirely (useful for test fixtures that
// seed credentials directly).
func bootstrapAdmin(ctx context.Context, db store.Store, cfg *config.Config) error {
	if cfg.AdminUsername == "" {
		return nil
	}

	hash, err := vault.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	table := db.Schema() + "credentials"
	b := store.BuilderFor(db.Dialect())

	var upsertSQL string
	var args []any

	if db.Dialect() == store.DialectPostgres {
		sqlStr, a, err := b.Insert(table).
			Columns("username", "password_hash").
			Values(cfg.AdminUsername, hash).
			Suffix("ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash").
			ToSql()
		if err != nil {
			return err
		}

		upsertSQL, args = sqlStr, a
	} else {
		sqlStr, a, err := b.Replace(table).
			Columns("username", "password_hash").
			Values(cfg.AdminUsername, hash).
			ToSql()
		if err != nil {
			return err
		}

		upsertSQL, args = sqlStr, a
	}

	_, err = db.Executor(ctx).ExecContext(ctx, upsertSQL, args...)
	return err
}

func lookupAdminHash(ctx context.Context, db store.Store, username string) (string, error) {
	b := store.BuilderFor(db.Dialect())

	sqlStr, args, err := b.Select("password_hash").
		From(db.Schema() + "credentials").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return "", err
	}

	var hash string
	err = db.Executor(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", ameboerr.NotFoundError{EntityType: "administrator"}
	} else if err != nil {
		return "", err
	}

	return hash, nil
}
