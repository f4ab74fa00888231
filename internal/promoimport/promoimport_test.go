package promoimport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornermart/pickup/internal/domain/promotion"
)

const csvHeader = "store_id,code,type,value,min_order_amount,max_uses,start_date,end_date,description\n"

type fakeInserter struct {
	mu   sync.Mutex
	seen map[string]promotion.Promotion
}

func (f *fakeInserter) Insert(_ context.Context, p promotion.Promotion) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]promotion.Promotion)
	}
	k := key(p.StoreID, p.Code)
	if _, ok := f.seen[k]; ok {
		return false, nil
	}
	f.seen[k] = p
	return true, nil
}

func writeGz(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(csvHeader + body))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		rec     string
		wantErr string
		check   func(t *testing.T, p promotion.Promotion)
	}{
		{
			name: "percentage with limits",
			rec:  "s1, save10 ,percentage,10,25.00,100,2026-01-01,2026-12-31,Ten off",
			check: func(t *testing.T, p promotion.Promotion) {
				assert.Equal(t, "SAVE10", p.Code)
				assert.Equal(t, promotion.TypePercentage, p.Type)
				assert.Equal(t, "25.00", p.MinOrderAmount.StringFixed(2))
				require.NotNil(t, p.MaxUses)
				assert.Equal(t, 100, *p.MaxUses)
				assert.True(t, p.Active)
				assert.NotEmpty(t, p.ID)
			},
		},
		{
			name: "optional columns empty",
			rec:  "s1,FIVE,FIXED_AMOUNT,5,,,2026-01-01T00:00:00Z,2026-02-01T00:00:00Z,",
			check: func(t *testing.T, p promotion.Promotion) {
				assert.Nil(t, p.MinOrderAmount)
				assert.Nil(t, p.MaxUses)
			},
		},
		{name: "missing code", rec: "s1,,PERCENTAGE,10,,,2026-01-01,2026-12-31,", wantErr: "code is required"},
		{name: "bad value", rec: "s1,X,PERCENTAGE,ten,,,2026-01-01,2026-12-31,", wantErr: "value"},
		{name: "bad max uses", rec: "s1,X,PERCENTAGE,10,,many,2026-01-01,2026-12-31,", wantErr: "max_uses"},
		{name: "bad date", rec: "s1,X,PERCENTAGE,10,,,01/01/2026,2026-12-31,", wantErr: "start_date"},
		{name: "unknown type", rec: "s1,X,BOGO,10,,,2026-01-01,2026-12-31,", wantErr: "unknown type"},
		{name: "inverted dates", rec: "s1,X,PERCENTAGE,10,,,2026-12-31,2026-01-01,", wantErr: "end date must be after start date"},
		{name: "short record", rec: "s1,X,PERCENTAGE", wantErr: "want 9 columns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseRecord(strings.Split(tt.rec, ","))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.csv.gz",
			"s1,SAVE10,PERCENTAGE,10,,,2026-01-01,2026-12-31,\n"+
				"s1,SHARED,FIXED_AMOUNT,2,,,2026-01-01,2026-12-31,\n"+
				"s1,TWICE,FIXED_AMOUNT,3,,,2026-01-01,2026-12-31,\n"+
				"s1,twice,FIXED_AMOUNT,4,,,2026-01-01,2026-12-31,\n"),
		writeGz(t, dir, "b.csv.gz",
			"s2,SAVE10,PERCENTAGE,15,,,2026-01-01,2026-12-31,\n"+
				"s1,shared,FIXED_AMOUNT,3,,,2026-01-01,2026-12-31,\n"),
	}

	dst := &fakeInserter{}
	res, err := Run(context.Background(), dst, files, Options{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, Result{Parsed: 6, Conflicting: 2, Inserted: 3, Existing: 1}, res)
	assert.Contains(t, dst.seen, key("s1", "SAVE10"))
	assert.Contains(t, dst.seen, key("s2", "SAVE10"))
	assert.Contains(t, dst.seen, key("s1", "TWICE"))
	assert.NotContains(t, dst.seen, key("s1", "SHARED"))
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := writeGz(t, dir, "bad.csv.gz", "s1,X,PERCENTAGE,abc,,,2026-01-01,2026-12-31,\n")

	plain := filepath.Join(dir, "plain.csv")
	require.NoError(t, os.WriteFile(plain, []byte(csvHeader), 0o600))

	wrongHeader := filepath.Join(dir, "header.csv.gz")
	f, err := os.Create(wrongHeader)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte("store,code,type,value,min,max,start,end,desc\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	tests := []struct {
		name    string
		files   []string
		wantErr string
	}{
		{name: "no files", wantErr: "no input files"},
		{name: "missing file", files: []string{filepath.Join(dir, "missing.gz")}, wantErr: "open"},
		{name: "not gzip", files: []string{plain}, wantErr: "gzip reader"},
		{name: "wrong header", files: []string{wrongHeader}, wantErr: "unexpected column 1"},
		{name: "bad row", files: []string{bad}, wantErr: "bad.csv.gz:2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), &fakeInserter{}, tt.files, Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
