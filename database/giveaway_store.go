package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/afanelli-PAM/il-mondo-di-lulz/giveaway"
	"github.com/afanelli-PAM/il-mondo-di-lulz/models"
)

// GiveawayStore is the gorm-backed implementation of the giveaway
// collaborator interfaces: user lookup, round settings, attempt ledger and
// win registry.
type GiveawayStore struct {
	db *gorm.DB
}

func NewGiveawayStore(db *gorm.DB) *GiveawayStore {
	return &GiveawayStore{db: db}
}

// FindUser returns nil without error for absent or soft-deleted accounts
// (gorm's DeletedAt filter covers the latter).
func (s *GiveawayStore) FindUser(ctx context.Context, id uint) (*giveaway.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sign := ""
	if u.SegnoZodiacale != nil {
		sign = *u.SegnoZodiacale
	}
	return &giveaway.User{
		ID:             u.ID,
		Nome:           u.Nome,
		Email:          u.Email,
		EmailVerified:  u.EmailVerified,
		SegnoZodiacale: sign,
	}, nil
}

// GetRound reads both round keys inside one transaction so the caller gets a
// consistent (active, id) pair.
func (s *GiveawayStore) GetRound(ctx context.Context) (giveaway.Round, error) {
	var r giveaway.Round
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := getSetting(tx, giveaway.SettingActive)
		if err != nil {
			return err
		}
		idStr, err := getSetting(tx, giveaway.SettingRoundID)
		if err != nil {
			return err
		}
		r.Active = active == "1"
		r.ID, _ = strconv.Atoi(idStr)
		return nil
	})
	return r, err
}

// SaveRound writes the active flag and round id (and, when activatedAt is
// set, the activation timestamp) in one transaction.
func (s *GiveawayStore) SaveRound(ctx context.Context, r giveaway.Round, activatedAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active := "0"
		if r.Active {
			active = "1"
		}
		if err := putSetting(tx, giveaway.SettingActive, active); err != nil {
			return err
		}
		if err := putSetting(tx, giveaway.SettingRoundID, strconv.Itoa(r.ID)); err != nil {
			return err
		}
		if !activatedAt.IsZero() {
			return putSetting(tx, giveaway.SettingActivatedAt, activatedAt.UTC().Format(time.RFC3339))
		}
		return nil
	})
}

func getSetting(tx *gorm.DB, key string) (string, error) {
	var row models.Setting
	err := tx.Where("`key` = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func putSetting(tx *gorm.DB, key, value string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}

func (s *GiveawayStore) CountAttempts(ctx context.Context, userID uint, roundID int) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.GiveawaySpin{}).
		Where("user_id = ? AND round_id = ?", userID, roundID).
		Count(&n).Error
	return int(n), err
}

// RecordAttempt counts and inserts in a single transaction, assigning
// attempt number count+1. The unique index on (user_id, round_id,
// attempt_number) turns a lost race into a duplicate-key error, reported as
// giveaway.ErrConflict.
func (s *GiveawayStore) RecordAttempt(ctx context.Context, a *giveaway.Attempt) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.GiveawaySpin{}).
			Where("user_id = ? AND round_id = ?", a.UserID, a.RoundID).
			Count(&n).Error; err != nil {
			return err
		}
		if int(n) >= giveaway.MaxAttempts {
			return giveaway.ErrAttemptsExhausted
		}

		row := models.GiveawaySpin{
			UserID:        a.UserID,
			RoundID:       a.RoundID,
			AttemptNumber: int(n) + 1,
			UserSign:      a.UserSign,
			ResultSign:    a.ResultSign,
			IsWinner:      a.IsWinner,
			AcceptedTerms: a.AcceptedTerms,
			IPAddress:     optional(a.Metadata.IPAddress),
			SessionID:     optional(a.Metadata.SessionID),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isDuplicateKey(err) {
				return giveaway.ErrConflict
			}
			return err
		}
		a.ID = row.ID
		a.AttemptNumber = row.AttemptNumber
		a.CreatedAt = row.CreatedAt
		return nil
	})
}

func (s *GiveawayStore) FindWinner(ctx context.Context, userID uint, roundID int) (*giveaway.Winner, error) {
	var row models.GiveawayWinner
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND round_id = ?", userID, roundID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return winnerFromRow(&row), nil
}

// winInsertRetries bounds the winner-insert loop when a win code lands for
// someone else between the probe and the insert.
const winInsertRetries = 4

// RecordWin issues the win code and inserts the winner row. A duplicate on
// (user_id, round_id) means someone already won and yields AlreadyWonError
// with the stored code. A duplicate on win_code is resolved here: the code
// is regenerated and only the insert is repeated, so the caller's attempt
// row is never touched.
func (s *GiveawayStore) RecordWin(ctx context.Context, w *giveaway.Winner) error {
	existing, err := s.FindWinner(ctx, w.UserID, w.RoundID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &giveaway.AlreadyWonError{WinCode: existing.WinCode}
	}

	var lastErr error
	for i := 0; i < winInsertRetries; i++ {
		row := models.GiveawayWinner{
			UserID:        w.UserID,
			RoundID:       w.RoundID,
			WinCode:       s.uniqueWinCode(ctx, w.RoundID),
			WinningSign:   w.WinningSign,
			AttemptNumber: w.AttemptNumber,
			SourceSpinID:  w.SourceSpinID,
		}
		err := s.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			w.ID = row.ID
			w.WinCode = row.WinCode
			w.CreatedAt = row.CreatedAt
			return nil
		}
		if !isDuplicateKey(err) {
			return err
		}
		if strings.Contains(err.Error(), "uniq_winner_user_round") {
			if again, ferr := s.FindWinner(ctx, w.UserID, w.RoundID); ferr == nil && again != nil {
				return &giveaway.AlreadyWonError{WinCode: again.WinCode}
			}
			return giveaway.ErrConflict
		}
		lastErr = err
	}
	return fmt.Errorf("emissione codice vincita dopo %d tentativi: %w", winInsertRetries, lastErr)
}

// ListWinners returns a round's winners, most recent first.
func (s *GiveawayStore) ListWinners(ctx context.Context, roundID int) ([]models.GiveawayWinner, error) {
	var rows []models.GiveawayWinner
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// uniqueWinCode probes a handful of candidates against existing codes. If
// all eight collide (practically impossible) the last candidate is returned
// anyway: the unique index on win_code still guarantees no duplicate lands.
func (s *GiveawayStore) uniqueWinCode(ctx context.Context, roundID int) string {
	var code string
	for i := 0; i < 8; i++ {
		code = giveaway.BuildWinCode(roundID)
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.GiveawayWinner{}).
			Where("win_code = ?", code).Count(&n).Error; err == nil && n == 0 {
			return code
		}
	}
	return code
}

func winnerFromRow(row *models.GiveawayWinner) *giveaway.Winner {
	return &giveaway.Winner{
		ID:            row.ID,
		UserID:        row.UserID,
		RoundID:       row.RoundID,
		WinCode:       row.WinCode,
		WinningSign:   row.WinningSign,
		AttemptNumber: row.AttemptNumber,
		SourceSpinID:  row.SourceSpinID,
		Redeemed:      row.Redeemed,
		CreatedAt:     row.CreatedAt,
	}
}

func isDuplicateKey(err error) bool {
	var me *mysqldriver.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
