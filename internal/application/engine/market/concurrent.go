package market

// concurrent.go — worker pool para preparar agentes en paralelo.
//
// Cada agente es dueño de su población de reglas y de su propio rng, y el
// mundo sólo se lee durante esta fase, así que los agentes se pueden
// preparar (GA incluido) en cualquier orden sin locks.

import (
	"runtime"
	"sync"

	"github.com/alejandrodnm/sfasm/internal/agent"
)

// prepareAgentsConcurrent llama PrepareForTrading en todos los agentes
// usando un worker pool. Si workers <= 0 usa runtime.NumCPU().
// Con un solo worker (o un solo agente) corre en la goroutine actual.
func prepareAgentsConcurrent(agents []*agent.Agent, view agent.WorldView, t, workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(agents))

	if workers <= 1 {
		for _, a := range agents {
			a.PrepareForTrading(view, t)
		}
		return
	}

	workCh := make(chan *agent.Agent, len(agents))
	for _, a := range agents {
		workCh <- a
	}
	close(workCh)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range workCh {
				a.PrepareForTrading(view, t)
			}
		}()
	}
	wg.Wait()
}
