// Package postgres implements the storage interfaces backed by PostgreSQL.
// Balance-mutating operations run in a single transaction with the wallet row
// locked, so an entry and its balance effect are one durable unit.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/stakewell/engine/internal/domain/contract"
	"github.com/stakewell/engine/internal/domain/gamify"
	"github.com/stakewell/engine/internal/domain/wallet"
	"github.com/stakewell/engine/internal/storage"
)

const pqUniqueViolation = "23505"

// Store implements the storage interfaces using a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.WalletStore = (*Store)(nil)
var _ storage.ContractStore = (*Store)(nil)
var _ storage.PlatformStore = (*Store)(nil)
var _ storage.BadgeStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- WalletStore ------------------------------------------------------------

func (s *Store) EnsureWallet(ctx context.Context, userID string) (wallet.Wallet, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.NewString(), userID, now)
	if err != nil {
		return wallet.Wallet{}, err
	}
	return s.GetWalletByUser(ctx, userID)
}

func (s *Store) GetWallet(ctx context.Context, id string) (wallet.Wallet, error) {
	return scanWallet(s.db.QueryRowContext(ctx, walletQuery+` WHERE id = $1`, id))
}

func (s *Store) GetWalletByUser(ctx context.Context, userID string) (wallet.Wallet, error) {
	return scanWallet(s.db.QueryRowContext(ctx, walletQuery+` WHERE user_id = $1`, userID))
}

const walletQuery = `
	SELECT id, user_id, balance, locked_balance, points, lifetime_points,
	       streak, last_active_at, created_at, updated_at
	FROM wallets`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(row rowScanner) (wallet.Wallet, error) {
	var (
		w          wallet.Wallet
		lastActive sql.NullTime
	)
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.LockedBalance, &w.Points,
		&w.LifetimePoints, &w.Streak, &lastActive, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	if err != nil {
		return wallet.Wallet{}, err
	}
	if lastActive.Valid {
		w.LastActiveAt = lastActive.Time.UTC()
	}
	return w, nil
}

func (s *Store) Apply(ctx context.Context, m storage.Mutation) (wallet.Entry, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wallet.Entry{}, false, err
	}
	defer tx.Rollback()

	entry, created, err := applyTx(ctx, tx, m)
	if err != nil {
		var pqErr *pq.Error
		// Concurrent duplicate delivery can race past the read check and hit
		// the (wallet_id, external_ref) unique index; the original entry wins.
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation && m.Entry.ExternalRef != "" {
			existing, lookupErr := s.entryByRef(ctx, m.Entry.WalletID, m.Entry.ExternalRef)
			if lookupErr == nil {
				return existing, false, nil
			}
		}
		return wallet.Entry{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return wallet.Entry{}, false, err
	}
	return entry, created, nil
}

// applyTx performs the locked read-check-write inside the caller's
// transaction. Used by both Apply and Settle.
func applyTx(ctx context.Context, tx *sql.Tx, m storage.Mutation) (wallet.Entry, bool, error) {
	if m.Entry.ExternalRef != "" {
		existing, err := entryByRefTx(ctx, tx, m.Entry.WalletID, m.Entry.ExternalRef)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return wallet.Entry{}, false, err
		}
	}

	var balance, locked, points, lifetime int64
	err := tx.QueryRowContext(ctx, `
		SELECT balance, locked_balance, points, lifetime_points
		FROM wallets WHERE id = $1 FOR UPDATE
	`, m.Entry.WalletID).Scan(&balance, &locked, &points, &lifetime)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Entry{}, false, wallet.ErrNotFound
	}
	if err != nil {
		return wallet.Entry{}, false, err
	}

	balance += m.DeltaBalance
	locked += m.DeltaLocked
	points += m.DeltaPoints
	lifetime += m.DeltaLifetime
	if balance < 0 || locked < 0 || points < 0 {
		return wallet.Entry{}, false, wallet.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $2, locked_balance = $3, points = $4, lifetime_points = $5, updated_at = $6
		WHERE id = $1
	`, m.Entry.WalletID, balance, locked, points, lifetime, now); err != nil {
		return wallet.Entry{}, false, err
	}

	e := m.Entry
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.BalanceAfter = balance
	e.LockedAfter = locked
	e.PointsAfter = points

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(id, wallet_id, entry_type, amount, points, description, external_ref,
			 balance_after, locked_after, points_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.WalletID, e.Type, e.Amount, e.Points, e.Description,
		toNullString(e.ExternalRef), e.BalanceAfter, e.LockedAfter, e.PointsAfter, e.CreatedAt); err != nil {
		return wallet.Entry{}, false, err
	}

	return e, true, nil
}

func (s *Store) entryByRef(ctx context.Context, walletID, ref string) (wallet.Entry, error) {
	return scanEntry(s.db.QueryRowContext(ctx, entryQuery+`
		WHERE wallet_id = $1 AND external_ref = $2`, walletID, ref))
}

func entryByRefTx(ctx context.Context, tx *sql.Tx, walletID, ref string) (wallet.Entry, error) {
	return scanEntry(tx.QueryRowContext(ctx, entryQuery+`
		WHERE wallet_id = $1 AND external_ref = $2`, walletID, ref))
}

const entryQuery = `
	SELECT id, wallet_id, entry_type, amount, points, description, external_ref,
	       balance_after, locked_after, points_after, created_at
	FROM ledger_entries`

func scanEntry(row rowScanner) (wallet.Entry, error) {
	var (
		e   wallet.Entry
		ref sql.NullString
	)
	err := row.Scan(&e.ID, &e.WalletID, &e.Type, &e.Amount, &e.Points, &e.Description,
		&ref, &e.BalanceAfter, &e.LockedAfter, &e.PointsAfter, &e.CreatedAt)
	if err != nil {
		return wallet.Entry{}, err
	}
	if ref.Valid {
		e.ExternalRef = ref.String
	}
	return e, nil
}

func (s *Store) UpdateActivity(ctx context.Context, walletID string, streak int, lastActiveAt time.Time) (wallet.Wallet, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wallets
		SET streak = $2, last_active_at = $3, updated_at = $4
		WHERE id = $1
	`, walletID, streak, lastActiveAt.UTC(), time.Now().UTC())
	if err != nil {
		return wallet.Wallet{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return s.GetWallet(ctx, walletID)
}

func (s *Store) ListEntries(ctx context.Context, walletID string, limit int) ([]wallet.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, entryQuery+`
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wallet.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// --- ContractStore ----------------------------------------------------------

func (s *Store) CreateContract(ctx context.Context, c contract.Contract) (contract.Contract, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts
			(id, user_id, goal, duration_days, stakes, status, days_completed,
			 deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.UserID, c.Goal, c.DurationDays, c.Stakes, c.Status, c.DaysCompleted,
		c.Deadline, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return contract.Contract{}, err
	}
	return c, nil
}

const contractQuery = `
	SELECT id, user_id, goal, duration_days, stakes, status, days_completed,
	       deadline, settled_at, created_at, updated_at
	FROM contracts`

func scanContract(row rowScanner) (contract.Contract, error) {
	var (
		c         contract.Contract
		settledAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Goal, &c.DurationDays, &c.Stakes, &c.Status,
		&c.DaysCompleted, &c.Deadline, &settledAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Contract{}, contract.ErrNotFound
	}
	if err != nil {
		return contract.Contract{}, err
	}
	if settledAt.Valid {
		c.SettledAt = settledAt.Time.UTC()
	}
	return c, nil
}

func (s *Store) GetContract(ctx context.Context, id string) (contract.Contract, error) {
	return scanContract(s.db.QueryRowContext(ctx, contractQuery+` WHERE id = $1`, id))
}

func (s *Store) UpdateContract(ctx context.Context, c contract.Contract) (contract.Contract, error) {
	existing, err := s.GetContract(ctx, c.ID)
	if err != nil {
		return contract.Contract{}, err
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE contracts
		SET goal = $2, duration_days = $3, stakes = $4, status = $5,
		    days_completed = $6, deadline = $7, settled_at = $8, updated_at = $9
		WHERE id = $1
	`, c.ID, c.Goal, c.DurationDays, c.Stakes, c.Status, c.DaysCompleted,
		c.Deadline, toNullTime(c.SettledAt), c.UpdatedAt)
	if err != nil {
		return contract.Contract{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return contract.Contract{}, contract.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListContracts(ctx context.Context, userID string) ([]contract.Contract, error) {
	rows, err := s.db.QueryContext(ctx, contractQuery+`
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContracts(rows)
}

func (s *Store) ListActiveContracts(ctx context.Context) ([]contract.Contract, error) {
	rows, err := s.db.QueryContext(ctx, contractQuery+`
		WHERE status = 'active'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContracts(rows)
}

func collectContracts(rows *sql.Rows) ([]contract.Contract, error) {
	var result []contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateSubmission(ctx context.Context, sub contract.Submission) (contract.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, contract_id, status, note, created_at, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sub.ID, sub.ContractID, sub.Status, sub.Note, sub.CreatedAt, toNullTime(sub.ReviewedAt))
	if err != nil {
		return contract.Submission{}, err
	}
	return sub, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, sub contract.Submission) (contract.Submission, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = $2, note = $3, reviewed_at = $4
		WHERE id = $1
	`, sub.ID, sub.Status, sub.Note, toNullTime(sub.ReviewedAt))
	if err != nil {
		return contract.Submission{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return contract.Submission{}, contract.ErrNotFound
	}
	return s.GetSubmission(ctx, sub.ID)
}

const submissionQuery = `
	SELECT id, contract_id, status, note, created_at, reviewed_at
	FROM submissions`

func scanSubmission(row rowScanner) (contract.Submission, error) {
	var (
		sub        contract.Submission
		reviewedAt sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.ContractID, &sub.Status, &sub.Note, &sub.CreatedAt, &reviewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Submission{}, contract.ErrNotFound
	}
	if err != nil {
		return contract.Submission{}, err
	}
	if reviewedAt.Valid {
		sub.ReviewedAt = reviewedAt.Time.UTC()
	}
	return sub, nil
}

func (s *Store) ApproveSubmission(ctx context.Context, submissionID string, reviewedAt time.Time) (contract.Submission, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.Submission{}, false, err
	}
	defer tx.Rollback()

	sub, err := scanSubmission(tx.QueryRowContext(ctx, submissionQuery+` WHERE id = $1 FOR UPDATE`, submissionID))
	if err != nil {
		return contract.Submission{}, false, err
	}
	if sub.Status != contract.SubmissionPending {
		if err := tx.Commit(); err != nil {
			return contract.Submission{}, false, err
		}
		return sub, false, nil
	}

	// Lock the contract row so concurrent reviews on the same contract
	// serialise before the same-day check below.
	var daysCompleted int
	if err := tx.QueryRowContext(ctx, `
		SELECT days_completed FROM contracts WHERE id = $1 FOR UPDATE
	`, sub.ContractID).Scan(&daysCompleted); err != nil {
		return contract.Submission{}, false, err
	}

	now := time.Now().UTC()
	sub.Status = contract.SubmissionApproved
	sub.ReviewedAt = reviewedAt.UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE submissions SET status = $2, reviewed_at = $3 WHERE id = $1
	`, sub.ID, sub.Status, sub.ReviewedAt); err != nil {
		return contract.Submission{}, false, err
	}

	day := sub.CreatedAt.UTC().Truncate(24 * time.Hour)
	var counted bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM submissions
			WHERE contract_id = $1 AND id <> $2 AND status = $3
			  AND created_at >= $4 AND created_at < $5
		)
	`, sub.ContractID, sub.ID, contract.SubmissionApproved, day, day.Add(24*time.Hour)).Scan(&counted); err != nil {
		return contract.Submission{}, false, err
	}
	if !counted {
		if _, err := tx.ExecContext(ctx, `
			UPDATE contracts
			SET days_completed = days_completed + 1, updated_at = $2
			WHERE id = $1
		`, sub.ContractID, now); err != nil {
			return contract.Submission{}, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return contract.Submission{}, false, err
	}
	return sub, !counted, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (contract.Submission, error) {
	return scanSubmission(s.db.QueryRowContext(ctx, submissionQuery+` WHERE id = $1`, id))
}

func (s *Store) ListSubmissions(ctx context.Context, contractID string) ([]contract.Submission, error) {
	rows, err := s.db.QueryContext(ctx, submissionQuery+`
		WHERE contract_id = $1
		ORDER BY created_at
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []contract.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) Settle(ctx context.Context, st storage.Settlement) (contract.Contract, wallet.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contract.Contract{}, wallet.Entry{}, err
	}
	defer tx.Rollback()

	// Lock the contract row so a concurrent settlement serialises here and
	// observes the terminal status below.
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM contracts WHERE id = $1 FOR UPDATE
	`, st.ContractID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Contract{}, wallet.Entry{}, contract.ErrNotFound
	}
	if err != nil {
		return contract.Contract{}, wallet.Entry{}, err
	}
	if status != st.FromStatus {
		c, getErr := s.GetContract(ctx, st.ContractID)
		if getErr != nil {
			return contract.Contract{}, wallet.Entry{}, getErr
		}
		return c, wallet.Entry{}, contract.ErrAlreadySettled
	}

	entry, _, err := applyTx(ctx, tx, st.Mutation)
	if err != nil {
		return contract.Contract{}, wallet.Entry{}, err
	}

	now := time.Now().UTC()
	if st.PlatformCredit > 0 {
		if err := creditPlatformTx(ctx, tx, st.PlatformCredit, st.ContractID, now); err != nil {
			return contract.Contract{}, wallet.Entry{}, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE contracts
		SET status = $2, settled_at = $3, updated_at = $3
		WHERE id = $1
	`, st.ContractID, st.ToStatus, now); err != nil {
		return contract.Contract{}, wallet.Entry{}, err
	}

	if err := tx.Commit(); err != nil {
		return contract.Contract{}, wallet.Entry{}, err
	}
	c, err := s.GetContract(ctx, st.ContractID)
	if err != nil {
		return contract.Contract{}, wallet.Entry{}, err
	}
	return c, entry, nil
}

// --- PlatformStore ----------------------------------------------------------

const platformWalletID = "platform"

func creditPlatformTx(ctx context.Context, tx *sql.Tx, amount int64, contractID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO platform_wallet (id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`, platformWalletID, now); err != nil {
		return err
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `
		UPDATE platform_wallet
		SET balance = balance + $2, total_revenue = total_revenue + $2, updated_at = $3
		WHERE id = $1
		RETURNING balance
	`, platformWalletID, amount, now).Scan(&balance); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO platform_entries (id, entry_type, amount, description, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), wallet.EntryStakeForfeit, amount,
		fmt.Sprintf("forfeit from contract %s", contractID), balance, now)
	return err
}

func (s *Store) EnsurePlatformWallet(ctx context.Context) (wallet.PlatformWallet, error) {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_wallet (id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`, platformWalletID, now); err != nil {
		return wallet.PlatformWallet{}, err
	}
	return s.GetPlatformWallet(ctx)
}

func (s *Store) GetPlatformWallet(ctx context.Context) (wallet.PlatformWallet, error) {
	var p wallet.PlatformWallet
	err := s.db.QueryRowContext(ctx, `
		SELECT id, balance, total_revenue, created_at, updated_at
		FROM platform_wallet WHERE id = $1
	`, platformWalletID).Scan(&p.ID, &p.Balance, &p.TotalRevenue, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.PlatformWallet{}, wallet.ErrNotFound
	}
	if err != nil {
		return wallet.PlatformWallet{}, err
	}
	return p, nil
}

func (s *Store) ListPlatformEntries(ctx context.Context, limit int) ([]wallet.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_type, amount, description, balance_after, created_at
		FROM platform_entries
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wallet.Entry
	for rows.Next() {
		var e wallet.Entry
		if err := rows.Scan(&e.ID, &e.Type, &e.Amount, &e.Description, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// --- BadgeStore -------------------------------------------------------------

func (s *Store) GrantBadge(ctx context.Context, grant gamify.BadgeGrant) (bool, error) {
	if grant.EarnedAt.IsZero() {
		grant.EarnedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO badge_grants (wallet_id, badge_key, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_id, badge_key) DO NOTHING
	`, grant.WalletID, grant.BadgeKey, grant.EarnedAt)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *Store) ListBadges(ctx context.Context, walletID string) ([]gamify.BadgeGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_id, badge_key, earned_at
		FROM badge_grants
		WHERE wallet_id = $1
		ORDER BY earned_at
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []gamify.BadgeGrant
	for rows.Next() {
		var g gamify.BadgeGrant
		if err := rows.Scan(&g.WalletID, &g.BadgeKey, &g.EarnedAt); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (s *Store) UserStats(ctx context.Context, userID string) (gamify.Stats, error) {
	var stats gamify.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT streak, lifetime_points FROM wallets WHERE user_id = $1
	`, userID).Scan(&stats.Streak, &stats.LifetimePoints)
	if errors.Is(err, sql.ErrNoRows) {
		return gamify.Stats{}, wallet.ErrNotFound
	}
	if err != nil {
		return gamify.Stats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT c.id),
			COUNT(DISTINCT c.id) FILTER (WHERE c.status = 'success'),
			COUNT(s.id)
		FROM contracts c
		LEFT JOIN submissions s ON s.contract_id = c.id
		WHERE c.user_id = $1
	`, userID).Scan(&stats.ContractCount, &stats.SuccessCount, &stats.SubmissionCount)
	if err != nil {
		return gamify.Stats{}, err
	}
	return stats, nil
}

// --- helpers ----------------------------------------------------------------

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
