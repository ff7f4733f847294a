// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rcache

import (
	"sync"
)

// Pool is a bounded worker pool for recomputation jobs. Numerical fits
// are CPU-bound; running them on a fixed number of workers keeps them
// from starving the I/O path.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

// NewPool starts n workers
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	pool := &Pool{
		jobs: make(chan func(), n*4),
	}
	pool.wg.Add(n)
	for ii := 0; ii < n; ii++ {
		go func() {
			defer pool.wg.Done()
			for job := range pool.jobs {
				job()
			}
		}()
	}
	return pool
}

// Submit enqueues a job, blocking when the queue is full
func (pool *Pool) Submit(job func()) {
	pool.jobs <- job
}

// TrySubmit enqueues a job unless the queue is full
func (pool *Pool) TrySubmit(job func()) bool {
	select {
	case pool.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop drains the queue and waits for workers to exit
func (pool *Pool) Stop() {
	pool.once.Do(func() {
		close(pool.jobs)
	})
	pool.wg.Wait()
}
