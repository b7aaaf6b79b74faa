// Command meetnow-seed builds a store snapshot from demo order fixtures.
// Fixtures are gzipped JSONL files (one order per line); files are parsed
// concurrently and duplicate order ids across files are dropped, first
// occurrence wins.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/bianshufei/meetnow/internal/domain/order"
	"github.com/bianshufei/meetnow/internal/store"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
)

type orderJSON struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	CreatorID     string          `json:"creator_id"`
	TakerID       string          `json:"taker_id"`
	ScheduledTime time.Time       `json:"scheduled_time"`
	Location      string          `json:"location"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}

func main() {
	var (
		fixturesDir string
		outPath     string
	)
	flag.StringVar(&fixturesDir, "fixtures-dir", "fixtures", "directory containing orders*.jsonl.gz files")
	flag.StringVar(&outPath, "out", "orders.snapshot.gz", "output snapshot path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, fixturesDir, outPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func run(ctx context.Context, fixturesDir, outPath string) error {
	files, err := filepath.Glob(filepath.Join(fixturesDir, "orders*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob fixtures")
	}
	if len(files) == 0 {
		return errors.Errorf("no orders*.jsonl.gz files under %s", fixturesDir)
	}
	sort.Strings(files)

	slog.Info("parsing fixtures", slog.Int("files", len(files)))

	// Parse every file concurrently into its own slice.
	parsed := make([][]order.Order, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFile(ctx, f, &parsed[i]))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Merge with a bloom filter for the common non-duplicate fast path; a
	// bloom hit is confirmed against the store before dropping, so false
	// positives never lose an order.
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	st := store.New()
	var total, dupes int
	for i, orders := range parsed {
		for _, o := range orders {
			total++
			if filter.TestAndAddString(o.ID) {
				if _, err := st.Get(o.ID); err == nil {
					dupes++
					continue
				}
			}
			if err := st.Insert(o); err != nil {
				return errors.Wrapf(err, "insert order %s from %s", o.ID, files[i])
			}
		}
	}

	slog.Info("fixtures merged",
		slog.Int("orders", st.Len()),
		slog.Int("parsed", total),
		slog.Int("duplicates", dupes),
	)

	if err := st.SaveFile(outPath); err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	slog.Info("snapshot written", slog.String("path", outPath))
	return nil
}

// parseFile returns an errgroup task reading one gzipped JSONL fixture.
func parseFile(ctx context.Context, path string, out *[]order.Order) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		zr, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "gzip %s", path)
		}
		defer zr.Close()

		var orders []order.Order
		sc := bufio.NewScanner(zr)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		line := 0
		for sc.Scan() {
			line++
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(sc.Bytes()) == 0 {
				continue
			}

			var rec orderJSON
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				return errors.Wrapf(err, "%s line %d", path, line)
			}
			o, err := toOrder(rec)
			if err != nil {
				return errors.Wrapf(err, "%s line %d", path, line)
			}
			orders = append(orders, o)
		}
		if err := sc.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		*out = orders
		return nil
	}
}

func toOrder(rec orderJSON) (order.Order, error) {
	status := order.Status(rec.Status)
	if rec.Status == "" {
		status = order.StatusPending
	}
	if !status.Valid() {
		return order.Order{}, errors.Errorf("invalid status %q", rec.Status)
	}
	if status == order.StatusPending && rec.TakerID != "" {
		return order.Order{}, errors.New("pending order cannot carry a taker")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return order.Order{
		ID:            rec.ID,
		Status:        status,
		CreatorID:     rec.CreatorID,
		TakerID:       rec.TakerID,
		ScheduledTime: rec.ScheduledTime,
		Location:      rec.Location,
		Amount:        rec.Amount,
		Description:   rec.Description,
		CreatedAt:     createdAt,
	}, nil
}
