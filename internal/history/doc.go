// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps the conversation list in memory and mirrors it to a
// history service.
//
// # Key Types
//
//   - Store: In-memory conversation list plus the current conversation pointer
//   - Service: Durable history backend (remote HTTP API or local SQLite)
//   - SQLite: Local Service used when no remote history backend is configured
//   - Status: Availability of the service, shown as a banner when not working
//
// # Usage
//
//	db, err := history.OpenSQLite(filepath.Join(dir, "history.db"))
//	if err != nil {
//	    return err
//	}
//	store := history.NewStore(db)
//	if status, _ := store.Ensure(ctx); !status.Available() {
//	    fmt.Println("Chat history is not enabled:", status)
//	}
//	conv, ok := store.Find(id)
package history
