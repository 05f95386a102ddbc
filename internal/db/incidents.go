package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"thirdcoast.systems/scanwatch/internal/incident"
	"thirdcoast.systems/scanwatch/pkg/utils/format"
)

// NotifyChannel is the Postgres channel signalled on every incident write.
const NotifyChannel = "incident_changes"

var (
	ErrForeignColumn = errors.New("column is not owned by stage")
	ErrInvalidGroup  = errors.New("invalid field group")
)

const incidentColumns = `id, file_identity, day_bucket, file_path, file_name, capture_time,
	system, department, channel, modulation, frequency, talkgroup,
	transcript, confidence, classification_label,
	address, formatted_address, map_link, latitude, longitude, imagery_link,
	parcel_owner, parcel_value, enrichment_state, failed_stages, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*incident.Incident, error) {
	var (
		inc                                  incident.Incident
		confidence, lat, lng                 sql.NullFloat64
		address, formatted, mapLink, imagery sql.NullString
		owner                                sql.NullString
		value                                sql.NullInt64
		state, failed                        int64
		createdAt, updatedAt                 int64
	)
	err := row.Scan(
		&inc.ID, &inc.FileIdentity, &inc.DayBucket, &inc.FilePath, &inc.FileName, &inc.CaptureTime,
		&inc.Attributes.System, &inc.Attributes.Department, &inc.Attributes.Channel,
		&inc.Attributes.Modulation, &inc.Attributes.Frequency, &inc.Attributes.Talkgroup,
		&inc.Transcript, &confidence, &inc.Label,
		&address, &formatted, &mapLink, &lat, &lng, &imagery,
		&owner, &value, &state, &failed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	inc.Confidence = nullFloat(confidence)
	inc.Address = nullString(address)
	inc.FormattedAddress = nullString(formatted)
	inc.MapLink = nullString(mapLink)
	inc.Latitude = nullFloat(lat)
	inc.Longitude = nullFloat(lng)
	inc.ImageryLink = nullString(imagery)
	inc.ParcelOwner = nullString(owner)
	inc.ParcelValue = nullInt(value)
	inc.State = incident.Stages(state)
	inc.Failed = incident.Stages(failed)
	inc.CreatedAt = fromMillis(createdAt)
	inc.UpdatedAt = fromMillis(updatedAt)
	return &inc, nil
}

func (db *DatabaseConnection) queryIncidents(ctx context.Context, query string, args ...any) ([]incident.Incident, error) {
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []incident.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

// CreateStub inserts the stub row for a recording unless one already exists
// for the same (file_identity, day_bucket). It returns the row id either way;
// created is true only for the caller whose insert won.
func (db *DatabaseConnection) CreateStub(ctx context.Context, stub incident.Stub) (int64, bool, error) {
	if err := db.validate.Struct(stub); err != nil {
		return 0, false, fmt.Errorf("invalid stub: %w", err)
	}

	var (
		id      int64
		created bool
	)
	err := withRetry(ctx, func() error {
		id, created = 0, false
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		if err := db.serialize(ctx, tx, lockIncidentInsert); err != nil {
			return err
		}

		now := millis(time.Now())
		a := stub.Attributes
		err = tx.QueryRowContext(ctx, db.rebind(`
			INSERT INTO incidents (
				file_identity, day_bucket, file_path, file_name, capture_time,
				system, department, channel, modulation, frequency, talkgroup,
				transcript, classification_label, enrichment_state, failed_stages,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
			ON CONFLICT (file_identity, day_bucket) DO NOTHING
			RETURNING id`),
			stub.FileIdentity, stub.DayBucket, stub.FilePath, stub.FileName, stub.CaptureTime,
			a.System, a.Department, a.Channel, a.Modulation, a.Frequency, a.Talkgroup,
			incident.TranscriptPending, incident.LabelUnknown, now, now,
		).Scan(&id)

		switch {
		case err == nil:
			created = true
			if err := db.notify(ctx, tx, id); err != nil {
				return err
			}
		case errors.Is(err, sql.ErrNoRows):
			err = tx.QueryRowContext(ctx, db.rebind(
				`SELECT id FROM incidents WHERE file_identity = ? AND day_bucket = ?`),
				stub.FileIdentity, stub.DayBucket,
			).Scan(&id)
			if err != nil {
				return err
			}
		default:
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, false, fmt.Errorf("create stub: %w", err)
	}
	return id, created, nil
}

// UpdateFields commits the group produced by one stage. The write only
// applies if the stage has not committed before, so a committed group can
// never be overwritten or nulled by a later call.
func (db *DatabaseConnection) UpdateFields(ctx context.Context, id int64, g incident.Group) (bool, error) {
	if g == nil {
		return false, errors.New("update fields: nil group")
	}
	if err := db.validate.Struct(g); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrInvalidGroup, g.Stage(), err)
	}
	cols := g.Columns()
	owned := incident.OwnedColumns[g.Stage()]
	for _, c := range cols {
		if !slices.Contains(owned, c.Name) {
			return false, fmt.Errorf("%w: %s writes %s", ErrForeignColumn, g.Stage(), c.Name)
		}
	}
	return db.commit(ctx, id, commitArgs{stage: g.Stage(), cols: cols})
}

// CommitEmpty marks a stage done without writing any field, for stages that
// ran and found nothing (no address in the transcript, no parcel at the
// point).
func (db *DatabaseConnection) CommitEmpty(ctx context.Context, id int64, stage incident.Stage) (bool, error) {
	return db.commit(ctx, id, commitArgs{stage: stage})
}

// maxErrorRunes bounds the error text kept in the update log. Cutting by
// rune keeps the text valid UTF-8, which Postgres insists on.
const maxErrorRunes = 1000

// RecordFailure marks a stage failed and writes its failure sentinel where
// the stage has one.
func (db *DatabaseConnection) RecordFailure(ctx context.Context, id int64, stage incident.Stage, cause error) (bool, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	msg = format.Truncate(msg, maxErrorRunes)
	return db.commit(ctx, id, commitArgs{stage: stage, cols: failureColumns(stage), failed: true, errText: msg})
}

func failureColumns(stage incident.Stage) []incident.Column {
	switch stage {
	case incident.StageTranscribe:
		return []incident.Column{{Name: "transcript", Value: incident.TranscriptFailed}}
	case incident.StageClassify:
		return []incident.Column{{Name: "classification_label", Value: incident.LabelUnknown}}
	}
	return nil
}

type commitArgs struct {
	stage   incident.Stage
	cols    []incident.Column
	failed  bool
	errText string

	// extra narrows the UPDATE beyond the once-per-stage guard.
	extra     string
	extraArgs []any
	// force skips the once-per-stage guard.
	force bool
}

func (db *DatabaseConnection) commit(ctx context.Context, id int64, a commitArgs) (bool, error) {
	bit := int64(a.stage)
	failedClause := "failed_stages = failed_stages | ?"
	var failedArg int64
	switch {
	case a.failed:
		failedArg = bit
	case a.force:
		// A forced success clears an earlier failure of the same stage.
		failedClause = "failed_stages = failed_stages & ?"
		failedArg = int64(incident.Complete) &^ bit
	}

	set := make([]string, 0, len(a.cols)+3)
	args := make([]any, 0, len(a.cols)+8)
	for _, c := range a.cols {
		set = append(set, c.Name+" = ?")
		args = append(args, c.Value)
	}
	set = append(set,
		"enrichment_state = enrichment_state | ?",
		failedClause,
		"updated_at = ?",
	)

	where := "id = ?"
	if !a.force {
		where += " AND (enrichment_state & ?) = 0"
	}
	if a.extra != "" {
		where += " AND " + a.extra
	}
	query := "UPDATE incidents SET " + strings.Join(set, ", ") + " WHERE " + where + " RETURNING day_bucket"

	var applied bool
	err := withRetry(ctx, func() error {
		applied = false
		now := time.Now()
		qargs := append(slices.Clone(args), bit, failedArg, millis(now), id)
		if !a.force {
			qargs = append(qargs, bit)
		}
		qargs = append(qargs, a.extraArgs...)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		if err := db.serialize(ctx, tx, lockUpdateInsert); err != nil {
			return err
		}

		var bucket string
		err = tx.QueryRowContext(ctx, db.rebind(query), qargs...).Scan(&bucket)
		if errors.Is(err, sql.ErrNoRows) {
			var one int
			err = tx.QueryRowContext(ctx, db.rebind(`SELECT 1 FROM incidents WHERE id = ?`), id).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err != nil {
			return err
		}

		var errText any
		if a.errText != "" {
			errText = a.errText
		}
		_, err = tx.ExecContext(ctx, db.rebind(`
			INSERT INTO incident_updates (incident_id, day_bucket, stage, failed, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			id, bucket, a.stage.String(), a.failed, errText, millis(now),
		)
		if err != nil {
			return err
		}
		if err := db.notify(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("commit %s: %w", a.stage, err)
	}
	return applied, nil
}

func (db *DatabaseConnection) notify(ctx context.Context, tx *sql.Tx, id int64) error {
	if db.driver != DriverPostgres {
		return nil
	}
	_, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, fmt.Sprint(id))
	return err
}

// Get looks a row up by its natural key.
func (db *DatabaseConnection) Get(ctx context.Context, identity, bucket string) (*incident.Incident, error) {
	row := db.QueryRowContext(ctx, db.rebind(`SELECT `+incidentColumns+`
		FROM incidents WHERE file_identity = ? AND day_bucket = ?`), identity, bucket)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inc, err
}

func (db *DatabaseConnection) GetByID(ctx context.Context, id int64) (*incident.Incident, error) {
	row := db.QueryRowContext(ctx, db.rebind(`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`), id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inc, err
}

// ChangesSince returns rows of bucket with id above watermark, in id order.
func (db *DatabaseConnection) ChangesSince(ctx context.Context, watermark int64, bucket string, limit int) ([]incident.Incident, error) {
	if limit <= 0 {
		limit = 500
	}
	return db.queryIncidents(ctx, `SELECT `+incidentColumns+`
		FROM incidents
		WHERE day_bucket = ? AND id > ?
		ORDER BY id
		LIMIT ?`, bucket, watermark, limit)
}

// UpdatesSince returns the rows of bucket touched by stage commits after seq,
// in id order, and the highest seq consumed.
func (db *DatabaseConnection) UpdatesSince(ctx context.Context, seq int64, bucket string, limit int) ([]incident.Incident, int64, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, db.rebind(`
		SELECT seq, incident_id FROM incident_updates
		WHERE day_bucket = ? AND seq > ?
		ORDER BY seq
		LIMIT ?`), bucket, seq, limit)
	if err != nil {
		return nil, seq, err
	}
	defer rows.Close()

	next := seq
	var ids []int64
	for rows.Next() {
		var s, id int64
		if err := rows.Scan(&s, &id); err != nil {
			return nil, seq, err
		}
		next = max(next, s)
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, seq, err
	}
	if len(ids) == 0 {
		return nil, next, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	incs, err := db.queryIncidents(ctx, `SELECT `+incidentColumns+`
		FROM incidents WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`, args...)
	if err != nil {
		return nil, seq, err
	}
	return incs, next, nil
}

// MaxID is the highest row id in bucket, 0 when the bucket is empty.
func (db *DatabaseConnection) MaxID(ctx context.Context, bucket string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, db.rebind(
		`SELECT COALESCE(MAX(id), 0) FROM incidents WHERE day_bucket = ?`), bucket).Scan(&id)
	return id, err
}

func (db *DatabaseConnection) MaxUpdateSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM incident_updates`).Scan(&seq)
	return seq, err
}

// CheckSchema reads every column the store uses. A database left behind by
// a pinned GOOSE_UP_TO fails here with ErrSchemaOutdated instead of on the
// first write.
func (db *DatabaseConnection) CheckSchema(ctx context.Context) error {
	for _, q := range []string{
		`SELECT ` + incidentColumns + ` FROM incidents LIMIT 0`,
		`SELECT seq, incident_id, day_bucket, stage, failed, error, created_at FROM incident_updates LIMIT 0`,
	} {
		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			if IsUndefinedColumnErr(err) {
				return fmt.Errorf("%w: %v", ErrSchemaOutdated, err)
			}
			return err
		}
		_ = rows.Close()
	}
	return nil
}

// ListIncomplete pages through rows of buckets at or after sinceBucket that
// still have a stage left to run.
func (db *DatabaseConnection) ListIncomplete(ctx context.Context, sinceBucket string, afterID int64, limit int) ([]incident.Incident, error) {
	if limit <= 0 {
		limit = 200
	}
	incs, err := db.queryIncidents(ctx, `SELECT `+incidentColumns+`
		FROM incidents
		WHERE day_bucket >= ? AND id > ? AND enrichment_state <> ?
		ORDER BY id
		LIMIT ?`, sinceBucket, afterID, int64(incident.Complete), limit)
	if err != nil {
		return nil, err
	}
	return incs, nil
}

type ListParams struct {
	Bucket string
	Label  string
	Limit  int
	Offset int
}

// List returns the newest rows of a bucket first.
func (db *DatabaseConnection) List(ctx context.Context, p ListParams) ([]incident.Incident, error) {
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE day_bucket = ?`
	args := []any{p.Bucket}
	if p.Label != "" {
		query += ` AND classification_label = ?`
		args = append(args, p.Label)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, p.Limit, p.Offset)
	return db.queryIncidents(ctx, query, args...)
}

type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

func (db *DatabaseConnection) LabelCounts(ctx context.Context, bucket string) ([]LabelCount, error) {
	rows, err := db.QueryContext(ctx, db.rebind(`
		SELECT classification_label, COUNT(*)
		FROM incidents
		WHERE day_bucket = ?
		GROUP BY classification_label
		ORDER BY COUNT(*) DESC, classification_label`), bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

type Stats struct {
	Total           int64
	Recent          int64
	HighPriority    int64
	UniqueLocations int64
	LastCreatedAt   *time.Time
}

// Stats summarises a bucket; Recent counts rows created at or after since.
func (db *DatabaseConnection) Stats(ctx context.Context, bucket string, since time.Time) (Stats, error) {
	var s Stats
	args := []any{millis(since)}
	for _, l := range incident.HighPriorityLabels {
		args = append(args, l)
	}
	args = append(args, bucket)

	var last sql.NullInt64
	err := db.QueryRowContext(ctx, db.rebind(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN classification_label IN (`+placeholders(len(incident.HighPriorityLabels))+`) THEN 1 ELSE 0 END), 0),
			MAX(created_at)
		FROM incidents
		WHERE day_bucket = ?`), args...).Scan(&s.Total, &s.Recent, &s.HighPriority, &last)
	if err != nil {
		return s, err
	}
	if last.Valid {
		t := fromMillis(last.Int64)
		s.LastCreatedAt = &t
	}

	err = db.QueryRowContext(ctx, db.rebind(`
		SELECT COUNT(DISTINCT formatted_address)
		FROM incidents
		WHERE day_bucket = ?
			AND formatted_address IS NOT NULL
			AND formatted_address <> ''
			AND formatted_address <> 'Unknown'`), bucket).Scan(&s.UniqueLocations)
	return s, err
}

// ListReclassifyCandidates pages through rows still labelled unknown that
// have a usable transcript. An empty bucket means every bucket.
func (db *DatabaseConnection) ListReclassifyCandidates(ctx context.Context, bucket string, afterID int64, limit int) ([]incident.Incident, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE id > ?
			AND classification_label = ?
			AND (enrichment_state & ?) <> 0
			AND transcript NOT IN (?, ?, ?)`
	args := []any{afterID, incident.LabelUnknown, int64(incident.StageTranscribe),
		incident.TranscriptPending, incident.TranscriptEmpty, incident.TranscriptFailed}
	if bucket != "" {
		query += ` AND day_bucket = ?`
		args = append(args, bucket)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	return db.queryIncidents(ctx, query, args...)
}

// Reclassify replaces an unknown label. A row that already carries a real
// label is left untouched and reported as not applied.
func (db *DatabaseConnection) Reclassify(ctx context.Context, id int64, label string) (bool, error) {
	if !incident.IsLabel(label) || label == incident.LabelUnknown {
		return false, fmt.Errorf("reclassify: invalid label %q", label)
	}
	return db.commit(ctx, id, commitArgs{
		stage:     incident.StageClassify,
		cols:      []incident.Column{{Name: "classification_label", Value: label}},
		force:     true,
		extra:     "classification_label = ?",
		extraArgs: []any{incident.LabelUnknown},
	})
}
