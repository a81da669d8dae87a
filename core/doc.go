/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package core implements a Join Calculus reaction-site scheduler.
//
// A Site owns a bag of molecules (messages) and a set of reactions.
// Each reaction declares a multiset of input patterns, optional
// guards, and a body. Whenever the bag holds a combination of
// molecules that satisfies some reaction's inputs and guards, the
// site atomically removes those molecules and dispatches the
// reaction's body on a thread pool.
//
// Emitters (non-blocking Molecule or Blocking) are typed handles bound
// to exactly one Site. Emitting a Blocking molecule suspends the
// caller on a ReplySlot until some reaction replies or the optional
// timeout elapses.
//
// A Site is built by Construct(), which runs the static analyzer
// (shadowing, livelock, static-molecule discipline) before any
// molecule can be emitted. Construction fails with a *ConfigError if
// the declared chemistry is unsound.
//
// This package does not parse any host-language pattern syntax; it
// consumes Reaction values whose input patterns are built with the
// constructors in pattern.go (Wildcard, SimpleVar, Const, Other) and
// whose guards are Go functions.
package core
