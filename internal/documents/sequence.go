package documents

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

// NextNumber issues the next number for a tenant+series, formatted like
// "R-2026-0042". The increment happens under SELECT FOR UPDATE on the
// sequence row, so concurrent issuance for the same series always yields
// distinct, strictly increasing numbers. With yearlyReset the counter starts
// over at 1 when the calendar year changes.
func NextNumber(tx *gorm.DB, scope tenant.Scope, series, prefix string, yearlyReset bool) (string, error) {
	var seq NumberSequence
	err := scope.DB(tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", series).
		First(&seq).Error

	year := time.Now().Year()

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Another issuer may insert the row first; the conflict clause keeps
		// the transaction alive and the re-select takes the lock either way.
		seed := NumberSequence{
			TenantID:    scope.TenantID,
			Name:        series,
			YearlyReset: yearlyReset,
			Year:        year,
		}
		if cErr := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; cErr != nil {
			return "", cErr
		}
		if lErr := scope.DB(tx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", series).
			First(&seq).Error; lErr != nil {
			return "", lErr
		}
	case err != nil:
		return "", err
	}

	if seq.YearlyReset && seq.Year != year {
		seq.Current = 0
		seq.Year = year
	}
	seq.Current++
	seq.UpdatedAt = time.Now()

	if err := tx.Save(&seq).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%d-%04d", prefix, seq.Year, seq.Current), nil
}

// SeriesFor maps a document type to its sequence series and number prefix.
func SeriesFor(t Type) (series, prefix string) {
	if t == TypeInvoice {
		return "ext_invoice", "R"
	}
	return "ext_quote", "A"
}
