package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listAccountsSQL = `SELECT
        id, name, revenue_by_year, segment_by_year, deal_count_by_year,
        active_segment, icp_score, last_interaction, relationship, archived
    FROM accounts
    ORDER BY id;`

	listDealsSQL = `SELECT
        id, account_id, status, pipeline_status, deal_type,
        amount_ex_tax, amount_inc_tax,
        contract_start, contract_end, estimate_date, created_date,
        department, address, archived
    FROM deals
    ORDER BY id;`

	listActiveSnoozesSQL = `SELECT account_id, category, expires_at
    FROM snoozes
    WHERE expires_at > $1;`

	updateAccountMapsSQL = `UPDATE accounts
    SET revenue_by_year    = $2,
        segment_by_year    = $3,
        deal_count_by_year = $4,
        active_segment     = $5
    WHERE id = $1;`

	deleteRiskFlagsSQL    = `DELETE FROM risk_flags;`
	deleteNeglectFlagsSQL = `DELETE FROM neglect_flags;`

	insertRiskFlagSQL = `INSERT INTO risk_flags (
        account_id, deal_id, contract_end, days_until_expiry, duplicate, conflict_ids
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	insertNeglectFlagSQL = `INSERT INTO neglect_flags (
        account_id, days_since_contact, no_interaction, threshold_days, segment
    ) VALUES ($1,$2,$3,$4,$5);`

	insertBatchRunSQL = `INSERT INTO batch_runs (
        run_id, as_of, started_at, finished_at,
        accounts, deals, risk_flags, neglect_flags,
        undated_deals, non_allocatable, missing_amount, amount_fallbacks,
        unrecognized_statuses, samples
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	listRecentRunsSQL = `SELECT
        run_id, as_of, started_at, finished_at,
        accounts, deals, risk_flags, neglect_flags,
        undated_deals, non_allocatable, missing_amount, amount_fallbacks,
        unrecognized_statuses, samples
    FROM batch_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	listRiskFlagsSQL = `SELECT
        account_id, deal_id, contract_end, days_until_expiry, duplicate, conflict_ids
    FROM risk_flags
    ORDER BY days_until_expiry;`

	listNeglectFlagsSQL = `SELECT
        account_id, days_since_contact, no_interaction, threshold_days, segment
    FROM neglect_flags
    ORDER BY days_since_contact DESC;`

	listYearTotalsSQL = `SELECT
        (kv.key)::int AS year,
        COALESCE(SUM((kv.value)::numeric), 0) AS total,
        COUNT(*) FILTER (WHERE (kv.value)::numeric > 0) AS active_accounts
    FROM accounts, jsonb_each_text(revenue_by_year) AS kv
    WHERE NOT archived
      AND (kv.key)::int BETWEEN $1 AND $2
    GROUP BY 1
    ORDER BY 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SnapshotSource loads the immutable inputs for one batch run.
type SnapshotSource interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	ListDeals(ctx context.Context) ([]Deal, error)
	ListActiveSnoozes(ctx context.Context, now time.Time) ([]SnoozeDirective, error)
}

// AccountUpdate carries one account's recomputed maps for write-back.
type AccountUpdate struct {
	ID              string
	RevenueByYear   map[int]decimal.Decimal
	SegmentByYear   map[int]string
	DealCountByYear map[int]int
	ActiveSegment   string
}

// BatchWrite bundles everything a completed run persists atomically.
type BatchWrite struct {
	Accounts     []AccountUpdate
	RiskFlags    []RiskFlagRecord
	NeglectFlags []NeglectFlagRecord
	Run          BatchRunRecord
}

// BatchWriter persists a completed batch in a single transaction.
type BatchWriter interface {
	SaveBatch(ctx context.Context, batch BatchWrite) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to accounts, deals, snoozes, flags, and runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; the lock drops with the session anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// ListAccounts returns every account, archived included; the engine filters.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAccountsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list accounts: %w", queryErr)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		account, scanErr := scanAccount(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		accounts = append(accounts, account)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return accounts, nil
}

// ListDeals returns every deal record.
func (s *Store) ListDeals(ctx context.Context) ([]Deal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDealsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list deals: %w", queryErr)
	}
	defer rows.Close()

	deals := make([]Deal, 0)
	for rows.Next() {
		deal, scanErr := scanDeal(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		deals = append(deals, deal)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return deals, nil
}

// ListActiveSnoozes returns snoozes that have not yet expired.
func (s *Store) ListActiveSnoozes(ctx context.Context, now time.Time) ([]SnoozeDirective, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveSnoozesSQL, now)
	if queryErr != nil {
		return nil, fmt.Errorf("list active snoozes: %w", queryErr)
	}
	defer rows.Close()

	snoozes := make([]SnoozeDirective, 0)
	for rows.Next() {
		var snooze SnoozeDirective
		if err := rows.Scan(&snooze.AccountID, &snooze.Category, &snooze.ExpiresAt); err != nil {
			return nil, err
		}
		snoozes = append(snoozes, snooze)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snoozes, nil
}

// SaveBatch writes account maps, both flag lists, and the run summary in one
// transaction. Any failure rolls back and leaves the prior maps untouched.
func (s *Store) SaveBatch(ctx context.Context, batch BatchWrite) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, update := range batch.Accounts {
		revenue, marshalErr := marshalYearMap(update.RevenueByYear)
		if marshalErr != nil {
			return marshalErr
		}
		segments, marshalErr := json.Marshal(stringKeyed(update.SegmentByYear))
		if marshalErr != nil {
			return fmt.Errorf("marshal segment map: %w", marshalErr)
		}
		counts, marshalErr := json.Marshal(intKeyed(update.DealCountByYear))
		if marshalErr != nil {
			return fmt.Errorf("marshal deal-count map: %w", marshalErr)
		}

		if _, execErr := tx.Exec(ctx, updateAccountMapsSQL,
			update.ID, revenue, segments, counts, update.ActiveSegment,
		); execErr != nil {
			return fmt.Errorf("update account %s: %w", update.ID, execErr)
		}
	}

	if _, execErr := tx.Exec(ctx, deleteRiskFlagsSQL); execErr != nil {
		return fmt.Errorf("clear risk flags: %w", execErr)
	}
	for _, flag := range batch.RiskFlags {
		if _, execErr := tx.Exec(ctx, insertRiskFlagSQL,
			flag.AccountID, flag.DealID, flag.ContractEnd,
			flag.DaysUntilExpiry, flag.Duplicate, flag.ConflictIDs,
		); execErr != nil {
			return fmt.Errorf("insert risk flag: %w", execErr)
		}
	}

	if _, execErr := tx.Exec(ctx, deleteNeglectFlagsSQL); execErr != nil {
		return fmt.Errorf("clear neglect flags: %w", execErr)
	}
	for _, flag := range batch.NeglectFlags {
		if _, execErr := tx.Exec(ctx, insertNeglectFlagSQL,
			flag.AccountID, flag.DaysSinceContact, flag.NoInteraction,
			flag.ThresholdDays, flag.Segment,
		); execErr != nil {
			return fmt.Errorf("insert neglect flag: %w", execErr)
		}
	}

	run := batch.Run
	if _, execErr := tx.Exec(ctx, insertBatchRunSQL,
		run.RunID, run.AsOf, run.StartedAt, run.FinishedAt,
		run.Accounts, run.Deals, run.RiskFlags, run.NeglectFlags,
		run.UndatedDeals, run.NonAllocatable, run.MissingAmount, run.AmountFallbacks,
		run.UnrecognizedStatuses, run.Samples,
	); execErr != nil {
		return fmt.Errorf("insert batch run: %w", execErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit batch tx: %w", commitErr)
	}
	return nil
}

// ListRecentRuns lists the most recent batch runs.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]BatchRunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]BatchRunRecord, 0, limit)
	for rows.Next() {
		var run BatchRunRecord
		if err := rows.Scan(
			&run.RunID, &run.AsOf, &run.StartedAt, &run.FinishedAt,
			&run.Accounts, &run.Deals, &run.RiskFlags, &run.NeglectFlags,
			&run.UndatedDeals, &run.NonAllocatable, &run.MissingAmount, &run.AmountFallbacks,
			&run.UnrecognizedStatuses, &run.Samples,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// ListRiskFlags lists current risk flags ordered by urgency.
func (s *Store) ListRiskFlags(ctx context.Context) ([]RiskFlagRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRiskFlagsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list risk flags: %w", queryErr)
	}
	defer rows.Close()

	flags := make([]RiskFlagRecord, 0)
	for rows.Next() {
		var flag RiskFlagRecord
		if err := rows.Scan(
			&flag.AccountID, &flag.DealID, &flag.ContractEnd,
			&flag.DaysUntilExpiry, &flag.Duplicate, &flag.ConflictIDs,
		); err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return flags, nil
}

// ListNeglectFlags lists current neglect flags, stalest first.
func (s *Store) ListNeglectFlags(ctx context.Context) ([]NeglectFlagRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNeglectFlagsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list neglect flags: %w", queryErr)
	}
	defer rows.Close()

	flags := make([]NeglectFlagRecord, 0)
	for rows.Next() {
		var flag NeglectFlagRecord
		if err := rows.Scan(
			&flag.AccountID, &flag.DaysSinceContact, &flag.NoInteraction,
			&flag.ThresholdDays, &flag.Segment,
		); err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return flags, nil
}

// ListYearTotals aggregates persisted per-account revenue into portfolio totals.
func (s *Store) ListYearTotals(ctx context.Context, fromYear, toYear int) ([]YearTotal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listYearTotalsSQL, fromYear, toYear)
	if queryErr != nil {
		return nil, fmt.Errorf("list year totals: %w", queryErr)
	}
	defer rows.Close()

	totals := make([]YearTotal, 0)
	for rows.Next() {
		var yt YearTotal
		var totalStr string
		if err := rows.Scan(&yt.Year, &totalStr, &yt.Account); err != nil {
			return nil, err
		}
		total, convErr := decimal.NewFromString(totalStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse year total: %w", convErr)
		}
		yt.Total = total
		totals = append(totals, yt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return totals, nil
}

func scanAccount(rows pgx.Rows) (Account, error) {
	var (
		account     Account
		revenueRaw  []byte
		segmentRaw  []byte
		countRaw    []byte
		icpScore    sql.NullFloat64
		lastContact sql.NullTime
	)

	if err := rows.Scan(
		&account.ID, &account.Name, &revenueRaw, &segmentRaw, &countRaw,
		&account.ActiveSegment, &icpScore, &lastContact,
		&account.Relationship, &account.Archived,
	); err != nil {
		return Account{}, err
	}

	revenue, err := unmarshalYearMap(revenueRaw)
	if err != nil {
		return Account{}, fmt.Errorf("account %s revenue map: %w", account.ID, err)
	}
	account.RevenueByYear = revenue

	segments, err := unmarshalSegmentMap(segmentRaw)
	if err != nil {
		return Account{}, fmt.Errorf("account %s segment map: %w", account.ID, err)
	}
	account.SegmentByYear = segments

	counts, err := unmarshalCountMap(countRaw)
	if err != nil {
		return Account{}, fmt.Errorf("account %s deal-count map: %w", account.ID, err)
	}
	account.DealCountByYear = counts

	if icpScore.Valid {
		value := icpScore.Float64
		account.ICPScore = &value
	}
	if lastContact.Valid {
		value := lastContact.Time
		account.LastInteraction = &value
	}

	return account, nil
}

func scanDeal(rows pgx.Rows) (Deal, error) {
	var (
		deal      Deal
		exTaxStr  sql.NullString
		incTaxStr sql.NullString
	)

	if err := rows.Scan(
		&deal.ID, &deal.AccountID, &deal.Status, &deal.PipelineStatus, &deal.Type,
		&exTaxStr, &incTaxStr,
		&deal.ContractStart, &deal.ContractEnd, &deal.EstimateDate, &deal.CreatedDate,
		&deal.Department, &deal.Address, &deal.Archived,
	); err != nil {
		return Deal{}, err
	}

	if exTaxStr.Valid {
		value, convErr := decimal.NewFromString(exTaxStr.String)
		if convErr != nil {
			return Deal{}, fmt.Errorf("deal %s amount_ex_tax: %w", deal.ID, convErr)
		}
		deal.AmountExTax = &value
	}
	if incTaxStr.Valid {
		value, convErr := decimal.NewFromString(incTaxStr.String)
		if convErr != nil {
			return Deal{}, fmt.Errorf("deal %s amount_inc_tax: %w", deal.ID, convErr)
		}
		deal.AmountIncTax = &value
	}

	return deal, nil
}

func marshalYearMap(m map[int]decimal.Decimal) ([]byte, error) {
	keyed := make(map[string]string, len(m))
	for year, value := range m {
		keyed[strconv.Itoa(year)] = value.String()
	}
	raw, err := json.Marshal(keyed)
	if err != nil {
		return nil, fmt.Errorf("marshal revenue map: %w", err)
	}
	return raw, nil
}

func unmarshalYearMap(raw []byte) (map[int]decimal.Decimal, error) {
	keyed := make(map[string]string)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, err
		}
	}
	result := make(map[int]decimal.Decimal, len(keyed))
	for key, value := range keyed {
		year, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("year key %q: %w", key, err)
		}
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("year %d amount %q: %w", year, value, err)
		}
		result[year] = amount
	}
	return result, nil
}

func unmarshalSegmentMap(raw []byte) (map[int]string, error) {
	keyed := make(map[string]string)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, err
		}
	}
	result := make(map[int]string, len(keyed))
	for key, value := range keyed {
		year, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("year key %q: %w", key, err)
		}
		result[year] = value
	}
	return result, nil
}

func unmarshalCountMap(raw []byte) (map[int]int, error) {
	keyed := make(map[string]int)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, err
		}
	}
	result := make(map[int]int, len(keyed))
	for key, value := range keyed {
		year, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("year key %q: %w", key, err)
		}
		result[year] = value
	}
	return result, nil
}

func stringKeyed(m map[int]string) map[string]string {
	keyed := make(map[string]string, len(m))
	for year, value := range m {
		keyed[strconv.Itoa(year)] = value
	}
	return keyed
}

func intKeyed(m map[int]int) map[string]int {
	keyed := make(map[string]int, len(m))
	for year, value := range m {
		keyed[strconv.Itoa(year)] = value
	}
	return keyed
}
