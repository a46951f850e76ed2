package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/walletimport/internal/tabular"
)

func record(t *testing.T, row string) tabular.Record {
	t.Helper()
	recs, err := tabular.Parse(exportHeader + "\n" + row + "\n")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func TestNormalizeRecordWithdrawal(t *testing.T) {
	tx, err := normalizeRecord(record(t, "2024/01/01 08:30:00,\"1,250\",,Uber ride,Uber,PayPay残高,2024010112345"))
	require.NoError(t, err)
	require.Equal(t, int64(-1250), tx.Amount)
	require.Equal(t, "2024-01-01", tx.Date.Format("2006-01-02"))
	require.NotNil(t, tx.Clock)
	require.Equal(t, "08:30", tx.Clock.String())
	require.Equal(t, "Uber ride", tx.Description)
	require.Equal(t, "Uber", tx.Counterparty)
	require.Equal(t, "PayPay残高", tx.WalletName)
	require.Equal(t, "2024010112345", tx.ExternalID)
}

func TestNormalizeRecordDeposit(t *testing.T) {
	tx, err := normalizeRecord(record(t, "2024/01/02 12:00,,3000,チャージ,,PayPay残高,x-1"))
	require.NoError(t, err)
	require.Equal(t, int64(3000), tx.Amount)
	require.Equal(t, "", tx.Counterparty)
}

func TestNormalizeRecordDateOnlyHasNoClock(t *testing.T) {
	tx, err := normalizeRecord(record(t, "2024/01/02,500,,text,,PayPay残高,x-2"))
	require.NoError(t, err)
	require.Nil(t, tx.Clock)
}

func TestNormalizeRecordAmbiguousAmounts(t *testing.T) {
	_, err := normalizeRecord(record(t, "2024/01/01,100,200,text,,PayPay残高,x-3"))
	var ambiguous *AmbiguousAmountError
	require.ErrorAs(t, err, &ambiguous)
	require.Equal(t, int64(100), ambiguous.Withdrawal)
	require.Equal(t, int64(200), ambiguous.Deposit)

	_, err = normalizeRecord(record(t, "2024/01/01,0,0,text,,PayPay残高,x-4"))
	require.ErrorAs(t, err, &ambiguous)
}

func TestNormalizeRecordRejectsBadFields(t *testing.T) {
	cases := []struct {
		name string
		row  string
	}{
		{"bad date", "01-01-2024,100,,text,,PayPay残高,x"},
		{"bad amount", "2024/01/01,abc,,text,,PayPay残高,x"},
		{"negative amount", "2024/01/01,-100,,text,,PayPay残高,x"},
		{"out-of-range amount", "2024/01/01,1e30,,text,,PayPay残高,x"},
		{"empty wallet", "2024/01/01,100,,text,,,x"},
		{"empty reference", "2024/01/01,100,,text,,PayPay残高,"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizeRecord(record(t, tc.row))
			require.Error(t, err)
			require.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestNormalizeRecordYenFormatting(t *testing.T) {
	tx, err := normalizeRecord(record(t, `2024/01/01,"¥12,345",,text,,PayPay残高,y-1`))
	require.NoError(t, err)
	require.Equal(t, int64(-12345), tx.Amount)
}

func TestRequiredHeadersMatchExport(t *testing.T) {
	require.Equal(t, strings.Split(exportHeader, ","), RequiredHeaders())
}
