// Package service orchestrates the import pipeline: it normalizes parsed
// export rows into canonical transactions, categorizes them against the
// compiled rule set, resolves wallet and category names to ids, and
// enforces the no-duplicate-import guarantee against persisted state.
package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jask/walletimport/internal/rules"
	"github.com/jask/walletimport/internal/tabular"
)

// Exact column headers of the e-wallet export.
const (
	colDate         = "取引日"
	colWithdrawal   = "出金金額（円）"
	colDeposit      = "入金金額（円）"
	colDescription  = "取引内容"
	colCounterparty = "取引先"
	colMethod       = "取引方法"
	colReference    = "取引番号"
)

// RequiredHeaders returns the column names the normalizer consumes, for
// fail-fast validation with tabular.ValidateHeaders.
func RequiredHeaders() []string {
	return []string{
		colDate, colWithdrawal, colDeposit, colDescription,
		colCounterparty, colMethod, colReference,
	}
}

// Transaction is the canonical, direction-signed shape of one export row.
type Transaction struct {
	Date         time.Time    // calendar date, midnight UTC
	Clock        *rules.Clock // nil when the export carries no intraday stamp
	Amount       int64        // signed yen: positive = inflow, negative = outflow
	Description  string
	Counterparty string
	WalletName   string
	ExternalID   string
}

// AmbiguousAmountError reports a row whose withdrawal/deposit pair does not
// describe exactly one money movement.
type AmbiguousAmountError struct {
	Line       int
	Withdrawal int64
	Deposit    int64
}

func (e *AmbiguousAmountError) Error() string {
	if e.Withdrawal == 0 && e.Deposit == 0 {
		return fmt.Sprintf("line %d: withdrawal and deposit are both zero", e.Line)
	}
	return fmt.Sprintf("line %d: withdrawal (%d) and deposit (%d) are both set", e.Line, e.Withdrawal, e.Deposit)
}

// maxYen caps amount columns well inside int64 range; converting a larger
// float to int64 is not defined.
const maxYen = 1e15

var dateLayouts = []string{
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

const dateOnlyLayout = "2006/01/02"

// normalizeRecord converts one parsed record into a canonical transaction.
// Field extraction is validated here, once; downstream code never touches
// the raw header map again.
func normalizeRecord(rec tabular.Record) (Transaction, error) {
	line := rec.Line()

	dateRaw, err := field(rec, colDate)
	if err != nil {
		return Transaction{}, err
	}
	date, clock, err := parseDateClock(dateRaw)
	if err != nil {
		return Transaction{}, fmt.Errorf("line %d: %w", line, err)
	}

	withdrawal, err := yenField(rec, colWithdrawal)
	if err != nil {
		return Transaction{}, fmt.Errorf("line %d: %w", line, err)
	}
	deposit, err := yenField(rec, colDeposit)
	if err != nil {
		return Transaction{}, fmt.Errorf("line %d: %w", line, err)
	}
	if (withdrawal == 0) == (deposit == 0) {
		return Transaction{}, &AmbiguousAmountError{Line: line, Withdrawal: withdrawal, Deposit: deposit}
	}
	amount := deposit - withdrawal

	wallet, err := field(rec, colMethod)
	if err != nil {
		return Transaction{}, err
	}
	if wallet == "" {
		return Transaction{}, fmt.Errorf("line %d: empty %s", line, colMethod)
	}
	externalID, err := field(rec, colReference)
	if err != nil {
		return Transaction{}, err
	}
	if externalID == "" {
		return Transaction{}, fmt.Errorf("line %d: empty %s", line, colReference)
	}
	description, err := field(rec, colDescription)
	if err != nil {
		return Transaction{}, err
	}
	counterparty, err := field(rec, colCounterparty)
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{
		Date:         date,
		Clock:        clock,
		Amount:       amount,
		Description:  description,
		Counterparty: counterparty,
		WalletName:   wallet,
		ExternalID:   externalID,
	}, nil
}

func field(rec tabular.Record, header string) (string, error) {
	v, ok := rec.Get(header)
	if !ok {
		return "", fmt.Errorf("line %d: missing column %s", rec.Line(), header)
	}
	return strings.TrimSpace(v), nil
}

// parseDateClock parses the export timestamp. A bare date is legal and
// yields a nil clock.
func parseDateClock(s string) (time.Time, *rules.Clock, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return date, &rules.Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	if t, err := time.Parse(dateOnlyLayout, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil, nil
	}
	return time.Time{}, nil, fmt.Errorf("bad date %q", s)
}

// yenField parses a yen magnitude column; empty means zero. Exports format
// thousands with commas and occasionally carry a currency sign.
func yenField(rec tabular.Record, header string) (int64, error) {
	raw, err := field(rec, header)
	if err != nil {
		return 0, err
	}
	if raw == "" || raw == "-" {
		return 0, nil
	}
	cleaned := strings.NewReplacer(",", "", "円", "", "¥", "", "￥", "").Replace(raw)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", header, raw)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative %s %q", header, raw)
	}
	if f > maxYen {
		return 0, fmt.Errorf("%s %q out of range", header, raw)
	}
	return int64(math.Round(f)), nil
}
