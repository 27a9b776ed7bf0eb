// Package memdb is an in-memory hierarchical store that implements the
// listener primitives of database.Reference.
//
// It serves as a local emulator for code built on the database package and as
// the store behind its tests. Writes are copy-on-write, listeners are notified
// in write order from a single delivery goroutine, and children are ordered by
// key, so ChildMoved is never reported.
//
// Usage:
//
//	db := memdb.New()
//	defer db.Close()
//	ref := db.Reference("rooms")
//	sub := database.ObserveChildren(ref, database.Root, database.JSONDecoder[Room]()).Subscribe(ctx)
//	_, err := ref.Push(Room{Name: "lobby"})
package memdb
