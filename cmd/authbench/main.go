package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Stats struct {
	TotalQueries uint64
	Success      uint64
	Errors       uint64
	Valid        uint64
	Latencies    chan time.Duration
}

func main() {
	mode := flag.String("mode", "bench", "Mode: bench or seed")
	target := flag.String("server", "http://127.0.0.1:8080", "Broker base URL")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	count := flag.Int("n", 1000, "Total number of verifications to send")
	seedCount := flag.Int("seed", 1000, "Number of auth ids to issue before benchmarking")
	idsFile := flag.String("ids", "", "File with one auth id per line; seeded ids are written here in seed mode")
	zipfS := flag.Float64("zipf-s", 1.1, "Zipf distribution constant (s > 1). Higher means more 'hot' ids.")
	zipfV := flag.Float64("zipf-v", 100, "Zipf distribution constant (v >= 1).")
	flag.Parse()

	ctx := context.Background()
	client := &http.Client{Timeout: 2 * time.Second}

	if err := run(ctx, client, *mode, *target, *idsFile, *seedCount, *count, *concurrency, *zipfS, *zipfV, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "authbench: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *http.Client, mode, target, idsFile string, seedCount, count, concurrency int, s, v float64, out io.Writer) error {
	switch mode {
	case "seed":
		ids, err := seedIDs(ctx, client, target, seedCount, concurrency)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Seeded %d auth ids.\n", len(ids))
		if idsFile != "" {
			return os.WriteFile(idsFile, []byte(strings.Join(ids, "\n")+"\n"), 0o600)
		}
		return nil
	case "bench":
		if s <= 1 || v < 1 {
			return fmt.Errorf("invalid zipf parameters s=%v v=%v: need s > 1 and v >= 1", s, v)
		}
		var (
			ids []string
			err error
		)
		if idsFile != "" {
			ids, err = loadIDs(idsFile)
		} else {
			ids, err = seedIDs(ctx, client, target, seedCount, concurrency)
		}
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return errors.New("no auth ids to verify")
		}
		start := time.Now()
		stats := runBenchmark(ctx, client, target, ids, count, concurrency, s, v)
		printEnhancedReport(out, time.Since(start), stats, concurrency)
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// seedIDs issues total auth ids through the API and returns them in issue order.
func seedIDs(ctx context.Context, client *http.Client, target string, total, concurrency int) ([]string, error) {
	ids := make([]string, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i := 0; i < total; i++ {
		g.Go(func() error {
			label := fmt.Sprintf("bench-%d", i)
			body, _ := json.Marshal(map[string]string{"customer_id": "bench", "label": label})
			req, err := http.NewRequestWithContext(gctx, http.MethodPost, target+"/auth-ids", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("issue %d: %w", i, err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("issue %d: unexpected status %d", i, resp.StatusCode)
			}

			var rec struct {
				ID string `json:"auth_id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
				return fmt.Errorf("issue %d: %w", i, err)
			}
			ids[i] = rec.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func loadIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, sc.Err()
}

func runBenchmark(ctx context.Context, client *http.Client, target string, ids []string, count, concurrency int, s, v float64) *Stats {
	concurrency = max(concurrency, 1)
	stats := &Stats{Latencies: make(chan time.Duration, count)}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runRealisticWorker(ctx, client, target, ids, workerShare(count, concurrency, workerID), workerID, s, v, stats)
		}(i)
	}
	wg.Wait()
	close(stats.Latencies)
	return stats
}

// workerShare splits count across workers; the first count%workers get one extra.
func workerShare(count, workers, workerID int) int {
	share := count / workers
	if workerID < count%workers {
		share++
	}
	return share
}

// runRealisticWorker verifies ids drawn from a Zipf distribution so a few hot ids
// dominate, the way gateway traffic concentrates on active clients.
func runRealisticWorker(ctx context.Context, client *http.Client, target string, ids []string, count, workerID int, s, v float64, stats *Stats) {
	r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	zipf := rand.NewZipf(r, s, v, uint64(len(ids)-1))

	for i := 0; i < count; i++ {
		id := ids[zipf.Uint64()]
		body, _ := json.Marshal(map[string]string{"auth_id": id})

		queryStart := time.Now()
		valid, err := verifyOnce(ctx, client, target, body)
		atomic.AddUint64(&stats.TotalQueries, 1)
		if err != nil {
			atomic.AddUint64(&stats.Errors, 1)
			continue
		}
		atomic.AddUint64(&stats.Success, 1)
		if valid {
			atomic.AddUint64(&stats.Valid, 1)
		}
		stats.Latencies <- time.Since(queryStart)
	}
}

func verifyOnce(ctx context.Context, client *http.Client, target string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"/auth-ids/verify", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out struct {
		IsValid bool `json:"is_valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.IsValid, nil
}

func printEnhancedReport(out io.Writer, duration time.Duration, stats *Stats, concurrency int) {
	qps := float64(stats.Success) / duration.Seconds()

	var latencies []time.Duration
	for l := range stats.Latencies {
		latencies = append(latencies, l)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Fprintln(out, "\n============================================")
	fmt.Fprintln(out, "       AUTH ID VERIFICATION REPORT          ")
	fmt.Fprintln(out, "============================================")
	fmt.Fprintf(out, "Test Duration:    %v\n", duration)
	fmt.Fprintf(out, "Concurrency:      %d workers\n", concurrency)
	fmt.Fprintf(out, "Throughput:       %.2f verifications/sec\n", qps)

	fmt.Fprintln(out, "\n--- Verification Statistics ---")
	fmt.Fprintf(out, "Total Attempted:  %d\n", stats.TotalQueries)
	fmt.Fprintf(out, "Successful:       %d\n", stats.Success)
	fmt.Fprintf(out, "Valid:            %d\n", stats.Valid)
	fmt.Fprintf(out, "Failed/Timed out: %d\n", stats.Errors)
	if stats.TotalQueries > 0 {
		fmt.Fprintf(out, "Reliability:      %.2f%%\n", (float64(stats.Success)/float64(stats.TotalQueries))*100)
	}

	if len(latencies) > 0 {
		fmt.Fprintln(out, "\n--- Latency Percentiles ---")
		fmt.Fprintf(out, "P50 (Median):     %v\n", latencies[len(latencies)/2])
		fmt.Fprintf(out, "P90:              %v\n", latencies[int(float64(len(latencies))*0.90)])
		fmt.Fprintf(out, "P99:              %v\n", latencies[int(float64(len(latencies))*0.99)])
		fmt.Fprintf(out, "Min:              %v\n", latencies[0])
		fmt.Fprintf(out, "Max:              %v\n", latencies[len(latencies)-1])
	}
	fmt.Fprintln(out, "============================================")
}
