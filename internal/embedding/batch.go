package embedding

import (
	"context"
	"sync"
)

const smallBatchThreshold = 10

// concurrentBatch embeds texts via embedOne, bypassing parallelism for
// small batches and fanning out across at most maxWorkers goroutines for
// larger ones. embedOne must be safe for concurrent use.
func concurrentBatch(ctx context.Context, texts []string, maxWorkers int, embedOne func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	if len(texts) < smallBatchThreshold || maxWorkers <= 1 {
		for i, t := range texts {
			v, err := embedOne(ctx, t)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, t := range texts {
		i, t := i, t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			v, err := embedOne(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			out[i] = v
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
