package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/punchamoorthee/pursledger/internal/domain"
	"github.com/punchamoorthee/pursledger/internal/ident"
)

type options struct {
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	promoRate   float64
}

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Recorded
	fail422       uint64 // Rejected by validation
	fail502       uint64 // Store statement failed
	failOther     uint64
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "benchmark",
		Short:        "Drive the bundles endpoint with random purchases",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.workload {
			case "fednow", "card", "mixed":
			default:
				return fmt.Errorf("invalid workload %q: must be fednow, card or mixed", opts.workload)
			}
			return run(opts)
		},
	}

	cmd.Flags().StringVar(&opts.targetURL, "url", "http://localhost:8080", "API Base URL")
	cmd.Flags().IntVar(&opts.concurrency, "workers", 10, "Number of concurrent workers")
	cmd.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "Test duration")
	cmd.Flags().StringVar(&opts.workload, "workload", "mixed", "Workload type: fednow | card | mixed")
	cmd.Flags().Float64Var(&opts.promoRate, "promo-rate", 0.25, "Share of purchases carrying a promotion")

	return cmd
}

func run(opts *options) error {
	fmt.Fprintf(os.Stderr, "Starting Benchmark: %s | Workers: %d | Duration: %s\n", opts.workload, opts.concurrency, opts.duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(opts.concurrency)

	for i := 0; i < opts.concurrency; i++ {
		go worker(&wg, opts, start)
	}

	wg.Wait()
	return printResults(opts, time.Since(start))
}

func worker(wg *sync.WaitGroup, opts *options, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < opts.duration {
		body, _ := json.Marshal(generateRequest(opts))

		req, _ := http.NewRequest("POST", opts.targetURL+"/api/v1/bundles", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		case http.StatusBadGateway:
			atomic.AddUint64(&fail502, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func generateRequest(opts *options) domain.BundleRequest {
	method := domain.PaymentMethodFedNow
	switch opts.workload {
	case "card":
		method = domain.PaymentMethodCard
	case "mixed":
		if rand.Intn(2) == 1 {
			method = domain.PaymentMethodCard
		}
	}

	req := domain.BundleRequest{
		Payor:              ident.Binary(ident.IDLength),
		Payee:              ident.Binary(ident.IDLength),
		PayorBankAccountID: ident.Binary(ident.IDLength),
		PayeeBankAccountID: ident.Binary(ident.IDLength),
		DeveloperID:        ident.Binary(ident.IDLength),
		Amount:             randomAmount(),
		InteractionType:    domain.InteractionMobile,
		PaymentMethod:      method,
	}
	if rand.Float64() < opts.promoRate {
		req.PromoAmount = randomAmount().Div(decimalTen)
	}
	return req
}

func printResults(opts *options, d time.Duration) error {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	f422 := atomic.LoadUint64(&fail422)
	f502 := atomic.LoadUint64(&fail502)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var failRate float64
	if total > 0 {
		failRate = float64(f422+f502) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":         opts.workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"success_created":  s201,
		"rejected_invalid": f422,
		"failed_statement": f502,
		"failure_rate_pct": failRate,
		"errors":           fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	filename := fmt.Sprintf("results_%s.json", opts.workload)
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(results)
}
