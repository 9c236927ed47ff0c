// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the storage abstraction layer for listings and
// per-source ingestion statistics.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return the interfaces defined here:
//
//	store, err := badger.NewStore(path)   // returns storage.Store
//	store, err := postgres.NewStore(ctx, dsn) // returns storage.Store
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Backends
//
//   - storage/badger: embedded store; nearest-neighbour search is a full scan
//   - storage/postgres: pgvector-backed store for production deployments
//
// # Uniqueness
//
// A listing is identified by (SourceID, MessageID). Exists is advisory;
// Insert enforces the key and reports a lost race as ErrDuplicateKey, which
// callers treat as a no-op rather than a failure.
//
// # Thread Safety
//
// All store implementations must be thread-safe and support concurrent
// access from multiple goroutines.
package storage
