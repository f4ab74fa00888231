// Package promoimport loads store promotions from gzip-compressed CSV files.
//
// Each file has a header row followed by one promotion per line:
//
//	store_id,code,type,value,min_order_amount,max_uses,start_date,end_date,description
//
// min_order_amount, max_uses and description may be empty. Dates are
// RFC 3339 timestamps or YYYY-MM-DD days. A store code present in more than
// one file is ambiguous and none of its rows are imported.
package promoimport

import (
	"context"
	"encoding/csv"
	"io"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cornermart/pickup/internal/domain/promotion"
)

// MaxFiles is the number of input files a single import accepts.
const MaxFiles = 64

const (
	bloomFPR    = 0.001
	dateLayout  = "2006-01-02"
	columnCount = 9
)

var header = []string{
	"store_id", "code", "type", "value", "min_order_amount",
	"max_uses", "start_date", "end_date", "description",
}

// Inserter stores a promotion unless one with the same store code exists.
type Inserter interface {
	Insert(ctx context.Context, p promotion.Promotion) (bool, error)
}

// Options configures an import.
type Options struct {
	// Workers bounds concurrent inserts. Defaults to 8.
	Workers      int
	// ExpectedRows sizes the per-file bloom filters. Defaults to 100k.
	ExpectedRows uint
	// Logger defaults to zap.NewNop.
	Logger       *zap.Logger
}

// Result summarizes an import.
type Result struct {
	// Parsed is the number of valid rows read across all files.
	Parsed      int
	// Conflicting is the number of rows dropped because their store code
	// appears in more than one file.
	Conflicting int
	// Inserted is the number of new promotions written.
	Inserted    int
	// Existing is the number of rows skipped because the code was already
	// stored.
	Existing    int
}

// Run imports promotions from files into dst.
func Run(ctx context.Context, dst Inserter, files []string, opts Options) (Result, error) {
	if len(files) == 0 {
		return Result{}, errors.New("no input files")
	}
	if len(files) > MaxFiles {
		return Result{}, errors.Errorf("too many input files: %d > %d", len(files), MaxFiles)
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.ExpectedRows == 0 {
		opts.ExpectedRows = 100_000
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, files, opts.ExpectedRows)
	if err != nil {
		return Result{}, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Pass 2: parsing rows")
	scanned, err := scanFiles(ctx, files, filters)
	if err != nil {
		return Result{}, errors.Wrap(err, "scan files")
	}

	rows, conflicting := dropConflicts(scanned)
	res := Result{Parsed: len(rows) + conflicting, Conflicting: conflicting}
	if conflicting > 0 {
		lg.Warn("Dropped codes present in several files", zap.Int("rows", conflicting))
	}

	lg.Info("Writing promotions", zap.Int("count", len(rows)))
	var inserted, existing atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, p := range rows {
		g.Go(func() error {
			ok, err := dst.Insert(gctx, p)
			if err != nil {
				return errors.Wrapf(err, "insert %s/%s", p.StoreID, p.Code)
			}
			if ok {
				inserted.Add(1)
			} else {
				existing.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	res.Inserted = int(inserted.Load())
	res.Existing = int(existing.Load())
	return res, err
}

// key identifies a promotion code within its store.
func key(storeID, code string) string {
	return storeID + "\x00" + promotion.NormalizeCode(code)
}

// buildFilters creates one bloom filter of store codes per file, concurrently.
func buildFilters(ctx context.Context, files []string, expected uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(expected, bloomFPR)
			err := streamFile(ctx, path, func(_ int, rec []string) error {
				filter.AddString(key(strings.TrimSpace(rec[0]), rec[1]))
				return nil
			})
			if err != nil {
				return err
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

type scannedRow struct {
	promo promotion.Promotion
	key   string
}

type fileScan struct {
	rows       []scannedRow
	// candidates maps keys that may occur in another file to this file's bit.
	candidates map[string]uint64
}

// scanFiles parses every file and marks keys that other files' filters may
// contain.
func scanFiles(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]fileScan, error) {
	results := make([]fileScan, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res := fileScan{candidates: make(map[string]uint64)}
			fileBit := uint64(1) << uint(i)
			err := streamFile(ctx, path, func(line int, rec []string) error {
				p, err := ParseRecord(rec)
				if err != nil {
					return errors.Wrapf(err, "%s:%d", path, line)
				}
				k := key(p.StoreID, p.Code)
				res.rows = append(res.rows, scannedRow{promo: p, key: k})
				for j, f := range filters {
					if j != i && f.TestString(k) {
						res.candidates[k] |= fileBit
						break
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dropConflicts merges scans and removes rows whose key was seen in two or
// more files. Bloom false positives only set one bit and survive.
func dropConflicts(scans []fileScan) ([]promotion.Promotion, int) {
	merged := make(map[string]uint64)
	for _, s := range scans {
		for k, mask := range s.candidates {
			merged[k] |= mask
		}
	}

	var (
		rows        []promotion.Promotion
		conflicting int
	)
	for _, s := range scans {
		for _, r := range s.rows {
			if bits.OnesCount64(merged[r.key]) >= 2 {
				conflicting++
				continue
			}
			rows = append(rows, r.promo)
		}
	}
	return rows, conflicting
}

// streamFile opens a gzip-compressed CSV file, checks its header and calls fn
// with the 1-based line number of each record.
func streamFile(ctx context.Context, path string, fn func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return readCSV(ctx, gz, fn)
}

func readCSV(ctx context.Context, r io.Reader, fn func(line int, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = columnCount
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err != nil {
		return errors.Wrap(err, "read header")
	}
	for i, name := range header {
		if strings.TrimSpace(strings.ToLower(head[i])) != name {
			return errors.Errorf("unexpected column %d %q, want %q", i+1, head[i], name)
		}
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

// ParseRecord converts one CSV record into a validated promotion with a
// fresh id.
func ParseRecord(rec []string) (promotion.Promotion, error) {
	if len(rec) != columnCount {
		return promotion.Promotion{}, errors.Errorf("want %d columns, got %d", columnCount, len(rec))
	}
	field := func(i int) string { return strings.TrimSpace(rec[i]) }

	p := promotion.Promotion{
		ID:          uuid.NewString(),
		StoreID:     field(0),
		Code:        promotion.NormalizeCode(field(1)),
		Type:        promotion.Type(strings.ToUpper(field(2))),
		Active:      true,
		Description: field(8),
	}
	if p.Code == "" {
		return promotion.Promotion{}, errors.New("code is required")
	}

	var err error
	if p.Value, err = decimal.NewFromString(field(3)); err != nil {
		return promotion.Promotion{}, errors.Wrap(err, "value")
	}
	if v := field(4); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return promotion.Promotion{}, errors.Wrap(err, "min_order_amount")
		}
		p.MinOrderAmount = &amount
	}
	if v := field(5); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return promotion.Promotion{}, errors.Wrap(err, "max_uses")
		}
		p.MaxUses = &n
	}
	if p.StartDate, err = parseDate(field(6)); err != nil {
		return promotion.Promotion{}, errors.Wrap(err, "start_date")
	}
	if p.EndDate, err = parseDate(field(7)); err != nil {
		return promotion.Promotion{}, errors.Wrap(err, "end_date")
	}
	if err := p.Validate(); err != nil {
		return promotion.Promotion{}, err
	}
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(dateLayout, s)
}
