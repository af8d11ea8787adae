// Package document_repo provides PostgreSQL implementations for
// workflow document repositories. Documents are stored as a header row
// plus child tables for lines and status history.
package document_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"fieldstock/internal/core/apperror"
	"fieldstock/internal/core/id"
	"fieldstock/internal/infrastructure/storage/postgres"
)

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// updateHeader writes the header row guarded by the document version.
// Documents bump their version in memory (Touch) before the repository
// sees them, so the guard accepts any stored version not newer than the
// incoming one and writes the incoming version back.
func updateHeader(ctx context.Context, txm *postgres.TxManager, table string, orgID id.ID, data map[string]any) error {
	docID, ok := data["id"]
	if !ok {
		return fmt.Errorf("document has no 'id' field with db tag")
	}
	version, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("document has no 'version' field or it is not an int")
	}

	setData := make(map[string]any, len(data))
	for col, val := range data {
		if col == "id" || col == "organization_id" || col == "created_at" || col == "created_by" {
			continue
		}
		setData[col] = val
	}

	q := builder().
		Update(table).
		SetMap(setData).
		Where(squirrel.Eq{"id": docID}).
		Where(squirrel.Eq{"organization_id": orgID}).
		Where(squirrel.LtOrEq{"version": version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}

	if result.RowsAffected() == 0 {
		exists, err := rowExists(ctx, txm, table, orgID, docID)
		if err != nil {
			return err
		}
		if !exists {
			return apperror.NewNotFound(table, fmt.Sprint(docID))
		}
		return apperror.NewConflict(table + " was modified concurrently").
			WithDetail("id", docID)
	}

	return nil
}

func rowExists(ctx context.Context, txm *postgres.TxManager, table string, orgID id.ID, docID any) (bool, error) {
	q := builder().
		Select("1").
		From(table).
		Where(squirrel.Eq{"id": docID}).
		Where(squirrel.Eq{"organization_id": orgID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	if err := txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check existence: %w", err)
	}
	return true, nil
}

// insertRow inserts a single row from a column map.
func insertRow(ctx context.Context, txm *postgres.TxManager, table string, data map[string]any) error {
	sql, args, err := builder().Insert(table).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// historyCount returns the number of persisted status history rows for
// a document. New history entries are the tail beyond this count.
func historyCount(ctx context.Context, txm *postgres.TxManager, table string, docID id.ID) (int, error) {
	sql, args, err := builder().
		Select("COUNT(*)").
		From(table).
		Where(squirrel.Eq{"request_id": docID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var count int
	if err := txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}
