// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Department of Linguistics,
// Faculty of Arts, Charles University
// Copyright 2025 The awrdetect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Anasbourzik7/awrdetect/eval/feats"
	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

type MySQLConf struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type Database struct {
	db     *sql.DB
	driver string
}

func (database *Database) createAWRDataTable() error {
	_, err := database.db.Exec(
		"CREATE TABLE awr_data (" +
			"id VARCHAR(40) PRIMARY KEY NOT NULL, " +
			"query_id VARCHAR(64) NOT NULL, " +
			"awr_file VARCHAR(255) NOT NULL, " +
			"elapsed_time DOUBLE, " +
			"rows_processed BIGINT, " +
			"cpu_percent DOUBLE, " +
			"query_text TEXT, " +
			"imported INTEGER NOT NULL, " +
			"training_exclude INT NOT NULL DEFAULT 0" +
			")",
	)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	log.Info().Msg("created table `awr_data`")
	return nil
}

func (database *Database) tableExists(tn string) (bool, error) {
	var ans *sql.Row
	if database.driver == DriverMySQL {
		ans = database.db.QueryRow(
			"SELECT table_name FROM information_schema.tables "+
				"WHERE table_schema = DATABASE() AND table_name = ?", tn)

	} else {
		ans = database.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", tn)
	}
	var nm sql.NullString
	err := ans.Scan(&nm)
	if err == sql.ErrNoRows {
		return false, nil

	} else if err != nil {
		return false, fmt.Errorf("failed to determine existence of table %s: %w", tn, err)
	}
	return true, nil
}

func (database *Database) ensureTable(name string, create func() error) error {
	ex, err := database.tableExists(name)
	if err != nil {
		return fmt.Errorf("failed to init table %s: %w", name, err)
	}
	if ex {
		log.Debug().Str("table", name).Msg("table already exists")
		return nil
	}
	if err := create(); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

// Init creates missing tables
func (database *Database) Init() error {
	if err := database.ensureTable("awr_data", database.createAWRDataTable); err != nil {
		return err
	}
	if err := database.ensureTable("training", database.createTrainingTable); err != nil {
		return err
	}
	return database.ensureTable("training_records", database.createTrainingRecordsTable)
}

// AddRecords stores records in a single transaction. Records already
// stored (same report and query) are replaced.
func (database *Database) AddRecords(ctx context.Context, records []feats.MetricRecord) (int, error) {
	tx, err := database.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to add records: %w", err)
	}
	stmt, err := tx.PrepareContext(
		ctx,
		"REPLACE INTO awr_data (id, query_id, awr_file, elapsed_time, rows_processed, "+
			"cpu_percent, query_text, imported) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to add records: %w", err)
	}
	defer stmt.Close()
	now := time.Now().Unix()
	for i, rec := range records {
		dbRec := DBRecord{MetricRecord: rec}
		_, err := stmt.ExecContext(
			ctx,
			IdempotentID(rec.SourceFile, rec.QueryID),
			rec.QueryID,
			rec.SourceFile,
			dbRec.nullElapsed(),
			dbRec.nullRows(),
			dbRec.nullCPU(),
			rec.QueryText,
			now,
		)
		if err != nil {
			tx.Rollback()
			return i, fmt.Errorf("failed to add record %s: %w", rec.UniqKey(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to add records: %w", err)
	}
	return len(records), nil
}

// SetTrainingExclude marks records of a report as excluded from training
func (database *Database) SetTrainingExclude(sourceFile string, exclude bool) (int64, error) {
	res, err := database.db.Exec(
		"UPDATE awr_data SET training_exclude = ? WHERE awr_file = ?", exclude, sourceFile)
	if err != nil {
		return 0, fmt.Errorf("failed to set training exclusion: %w", err)
	}
	return res.RowsAffected()
}

// GetAllRecords loads stored records in order of their import and
// report/query identification.
func (database *Database) GetAllRecords(filter ListFilter) ([]DBRecord, error) {
	query := "SELECT id, query_id, awr_file, elapsed_time, rows_processed, cpu_percent, " +
		"query_text, training_exclude FROM awr_data WHERE %s ORDER BY awr_file, query_id"
	whereChunks := make([]string, 0, 3)
	whereChunks = append(whereChunks, "1 = 1")
	args := make([]any, 0, 2)
	if filter.SourceFile != nil {
		whereChunks = append(whereChunks, "awr_file = ?")
		args = append(args, *filter.SourceFile)
	}
	if filter.TrainingExcluded != nil {
		if *filter.TrainingExcluded {
			whereChunks = append(whereChunks, "training_exclude = 1")

		} else {
			whereChunks = append(whereChunks, "training_exclude = 0")
		}
	}

	rows, err := database.db.Query(fmt.Sprintf(query, strings.Join(whereChunks, " AND ")), args...)
	if err != nil {
		return []DBRecord{}, fmt.Errorf("failed to fetch all records: %w", err)
	}
	defer rows.Close()
	ans := make([]DBRecord, 0, 500)
	for rows.Next() {
		var rec DBRecord
		var elapsed, cpu sql.NullFloat64
		var numRows sql.NullInt64
		var queryText sql.NullString
		err := rows.Scan(
			&rec.ID,
			&rec.QueryID,
			&rec.SourceFile,
			&elapsed,
			&numRows,
			&cpu,
			&queryText,
			&rec.TrainingExclude,
		)
		if err != nil {
			return []DBRecord{}, fmt.Errorf("failed to fetch all records: %w", err)
		}
		if elapsed.Valid {
			rec.ElapsedTime = feats.Float(elapsed.Float64)
		}
		if numRows.Valid {
			rec.RowsProcessed = feats.Int(numRows.Int64)
		}
		if cpu.Valid {
			rec.CPUPercent = feats.Float(cpu.Float64)
		}
		rec.QueryText = queryText.String
		ans = append(ans, rec)
	}
	if err := rows.Err(); err != nil {
		return []DBRecord{}, fmt.Errorf("failed to fetch all records: %w", err)
	}
	return ans, nil
}

// GetMetricRecords is GetAllRecords returning just the metric records
func (database *Database) GetMetricRecords(filter ListFilter) ([]feats.MetricRecord, error) {
	recs, err := database.GetAllRecords(filter)
	if err != nil {
		return nil, err
	}
	ans := make([]feats.MetricRecord, len(recs))
	for i, r := range recs {
		ans[i] = r.MetricRecord
	}
	return ans, nil
}

func (database *Database) Close() error {
	return database.db.Close()
}

// NewDatabase opens an SQLite database file
func NewDatabase(path string) (*Database, error) {
	dbConn, err := sql.Open(DriverSQLite, "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}
	return &Database{
		db:     dbConn,
		driver: DriverSQLite,
	}, nil
}

// NewMySQLDatabase connects a MySQL/MariaDB database
func NewMySQLDatabase(conf MySQLConf) (*Database, error) {
	mconf := mysql.NewConfig()
	mconf.Net = "tcp"
	mconf.Addr = conf.Host
	mconf.User = conf.User
	mconf.Passwd = conf.Password
	mconf.DBName = conf.Database
	mconf.ParseTime = true
	mconf.Loc = time.Local
	dbConn, err := sql.Open(DriverMySQL, mconf.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}
	return &Database{
		db:     dbConn,
		driver: DriverMySQL,
	}, nil
}
