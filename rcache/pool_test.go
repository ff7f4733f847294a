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

package rcache_test

import (
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliolens/risk-engine/rcache"
)

var _ = Describe("Worker pool", func() {
	Describe("When submitting jobs", func() {
		It("runs every submitted job before stopping", func() {
			pool := rcache.NewPool(2)
			var ran int32
			for ii := 0; ii < 10; ii++ {
				pool.Submit(func() { atomic.AddInt32(&ran, 1) })
			}
			pool.Stop()
			Expect(ran).To(Equal(int32(10)))
		})

		It("treats a worker count below one as one", func() {
			pool := rcache.NewPool(0)
			var ran int32
			pool.Submit(func() { atomic.AddInt32(&ran, 1) })
			pool.Stop()
			Expect(ran).To(Equal(int32(1)))
		})
	})

	Describe("When the queue is saturated", func() {
		It("rejects TrySubmit instead of blocking", func() {
			pool := rcache.NewPool(1)
			release := make(chan struct{})
			started := make(chan struct{})
			pool.Submit(func() {
				close(started)
				<-release
			})
			<-started

			// the single worker is blocked; fill the queue until TrySubmit
			// reports saturation
			accepted := 0
			for pool.TrySubmit(func() {}) {
				accepted++
				Expect(accepted).To(BeNumerically("<", 100))
			}
			Expect(accepted).To(BeNumerically(">", 0))

			close(release)
			pool.Stop()
		})
	})

	Describe("When stopping twice", func() {
		It("is safe to call Stop repeatedly", func() {
			pool := rcache.NewPool(1)
			pool.Stop()
			pool.Stop()
		})
	})
})
