package engine

import (
	"runtime"
	"sync"

	logger "github.com/sirupsen/logrus"
)

type indicatorResult struct {
	symbol string
	values map[string]float64
	err    error
}

// computeIndicators runs the indicator provider for every eligible
// symbol on a bounded worker pool and joins the results before
// returning. Each worker reads only its own symbol's history window
// and writes only its own result; no ledger or cross-symbol state is
// ever touched from a worker, so pool size cannot change simulation
// output.
func (p *PortfolioEngine) computeIndicators(eligible []string) map[string]map[string]float64 {
	if len(eligible) == 0 || p.provider == nil {
		return nil
	}

	workers := p.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(eligible) {
		workers = len(eligible)
	}

	jobs := make(chan string)
	results := make(chan indicatorResult, len(eligible))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				values, err := p.provider.Compute(sym, p.window(sym))
				results <- indicatorResult{symbol: sym, values: values, err: err}
			}
		}()
	}

	for _, sym := range eligible {
		jobs <- sym
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make(map[string]map[string]float64, len(eligible))
	for r := range results {
		if r.err != nil {
			logger.WithError(r.err).WithField("symbol", r.symbol).Debug("Indicator computation skipped")
			continue
		}
		out[r.symbol] = r.values
	}
	return out
}
