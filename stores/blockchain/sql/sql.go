// Package sql stores the block index in postgres or sqlite.
package sql

import (
	"context"
	"database/sql"
	"math/big"
	"net/url"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util"
	"github.com/bsv-blockchain/chainstate/util/tracing"
	"github.com/bsv-blockchain/chainstate/util/usql"
)

var tracer = tracing.Tracer("blockchain_store")

type SQL struct {
	db     *usql.DB
	logger ulogger.Logger
}

func New(logger ulogger.Logger, storeURL *url.URL, dataFolder string) (*SQL, error) {
	logger = logger.New("bcsql")

	db, err := util.InitSQLDB(logger, storeURL, dataFolder)
	if err != nil {
		return nil, errors.NewStorageError("failed to init sql db", err)
	}

	engine := util.SQLEngine(storeURL.Scheme)

	switch engine {
	case util.Postgres:
		if err = createPostgresSchema(db); err != nil {
			return nil, errors.NewStorageError("failed to create postgres schema", err)
		}

	case util.Sqlite, util.SqliteMemory:
		if err = createSqliteSchema(db); err != nil {
			return nil, errors.NewStorageError("failed to create sqlite schema", err)
		}

	default:
		return nil, errors.NewConfigurationError("unknown database engine: %s", storeURL.Scheme)
	}

	return &SQL{
		db:     db,
		logger: logger,
	}, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func createPostgresSchema(db *usql.DB) error {
	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS state (
	    key            VARCHAR(32) PRIMARY KEY
	    ,data          BYTEA NOT NULL
        ,inserted_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        ,updated_at    TIMESTAMPTZ NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create state table", err)
	}

	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS blocks (
	    id              BIGSERIAL PRIMARY KEY
	    ,parent_id      BIGINT NULL REFERENCES blocks(id)
	    ,hash           BYTEA NOT NULL
	    ,header         BYTEA NOT NULL
	    ,height         BIGINT NOT NULL
	    ,chain_work     BYTEA NOT NULL
	    ,status         BIGINT NOT NULL
	    ,seen           BIGINT NOT NULL
	    ,inserted_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create blocks table", err)
	}

	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_blocks_hash ON blocks (hash);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create ux_blocks_hash index", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_blocks_seen ON blocks (seen);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_blocks_seen index", err)
	}

	return nil
}

func createSqliteSchema(db *usql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS state (
		 key            VARCHAR(32) PRIMARY KEY
	    ,data           BLOB NOT NULL
        ,inserted_at    TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
        ,updated_at     TEXT NULL
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create state table", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS blocks (
		 id             INTEGER PRIMARY KEY AUTOINCREMENT
		,parent_id      INTEGER NULL REFERENCES blocks(id)
		,hash           BLOB NOT NULL
		,header         BLOB NOT NULL
		,height         BIGINT NOT NULL
		,chain_work     BLOB NOT NULL
		,status         BIGINT NOT NULL
		,seen           BIGINT NOT NULL
		,inserted_at    TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	  );
	`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create blocks table", err)
	}

	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_blocks_hash ON blocks (hash);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create ux_blocks_hash index", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_blocks_seen ON blocks (seen);`); err != nil {
		_ = db.Close()
		return errors.NewStorageError("could not create idx_blocks_seen index", err)
	}

	return nil
}

func (s *SQL) StoreBlocks(ctx context.Context, records []*model.BlockIndexRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	ctx, _, endSpan := tracer.Start(ctx, "sql:StoreBlocks")
	defer func() {
		endSpan(err)
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError("failed to begin transaction", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := `
		INSERT INTO blocks (parent_id, hash, header, height, chain_work, status, seen)
		VALUES ((SELECT id FROM blocks WHERE hash = $1), $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO UPDATE SET status = excluded.status
	`

	for _, record := range records {
		if _, err = tx.ExecContext(ctx, q,
			record.Header.HashPrevBlock.CloneBytes(),
			record.Hash().CloneBytes(),
			record.Header.Bytes(),
			record.Meta.Height,
			record.Meta.ChainWorkBytes(),
			record.Meta.Status,
			record.Meta.Seen,
		); err != nil {
			return errors.NewStorageError("failed to store block %s", record.Hash(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.NewStorageError("failed to commit block records", err)
	}

	return nil
}

func (s *SQL) GetBlocks(ctx context.Context) ([]*model.BlockIndexRecord, error) {
	ctx, _, endSpan := tracer.Start(ctx, "sql:GetBlocks")
	defer endSpan()

	q := `
		SELECT id, header, height, chain_work, status, seen
		FROM blocks
		ORDER BY seen ASC
	`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.NewStorageError("failed to query blocks", err)
	}

	defer rows.Close()

	var records []*model.BlockIndexRecord

	for rows.Next() {
		var (
			headerBytes    []byte
			chainWorkBytes []byte
			record         = &model.BlockIndexRecord{}
		)

		if err = rows.Scan(
			&record.Meta.ID,
			&headerBytes,
			&record.Meta.Height,
			&chainWorkBytes,
			&record.Meta.Status,
			&record.Meta.Seen,
		); err != nil {
			return nil, errors.NewStorageError("failed to scan block row", err)
		}

		if record.Header, err = model.NewBlockHeaderFromBytes(headerBytes); err != nil {
			return nil, errors.NewStoreCorruptError("invalid header in block row %d", record.Meta.ID, err)
		}

		record.Meta.ChainWork = new(big.Int).SetBytes(chainWorkBytes)

		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.NewStorageError("failed to iterate block rows", err)
	}

	return records, nil
}

func (s *SQL) GetState(ctx context.Context, key string) ([]byte, error) {
	ctx, _, endSpan := tracer.Start(ctx, "sql:GetState")
	defer endSpan()

	q := `
		SELECT data
		FROM state
		WHERE key = $1
	`

	var data []byte
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("state %s not found", key)
		}

		return nil, errors.NewStorageError("failed to get state %s", key, err)
	}

	return data, nil
}

func (s *SQL) SetState(ctx context.Context, key string, data []byte) error {
	ctx, _, endSpan := tracer.Start(ctx, "sql:SetState")
	defer endSpan()

	q := `
		INSERT INTO state (key, data)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, q, key, data); err != nil {
		return errors.NewStorageError("failed to set state %s", key, err)
	}

	return nil
}

func (s *SQL) Reset(ctx context.Context) error {
	ctx, _, endSpan := tracer.Start(ctx, "sql:Reset")
	defer endSpan()

	for _, q := range []string{`DELETE FROM blocks`, `DELETE FROM state`} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.NewStorageError("failed to reset block index", err)
		}
	}

	return nil
}
