/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"sync/atomic"
)

// volatileCell holds the last-observed value of a static molecule.
//
// Updated under the owning Site's scheduling lock (store) but read
// lock-free (load) via a boxed pointer swap, so that VolatileValue
// never blocks behind a reaction that is mid-update. A reader may
// observe the value the molecule held immediately before the
// currently-running update reaction consumed it; that is a documented
// contract, not a bug (spec design note on volatile-reader atomicity).
type volatileCell struct {
	p atomic.Pointer[any]
}

func newVolatileCell() *volatileCell {
	return &volatileCell{}
}

// store publishes a new observed value.
func (c *volatileCell) store(v any) {
	vv := v
	c.p.Store(&vv)
}

// load returns the last published value and whether one has ever been
// published.
func (c *volatileCell) load() (any, bool) {
	p := c.p.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}
