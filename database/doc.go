// Package database adapts a realtime database client's callback listeners into
// lazy, cancelable event streams.
//
// A Reference exposes the listener primitives of the underlying store. The
// Observe, ObserveOnce and ObserveChildren functions wrap them into a Stream
// that registers its listener only when subscribed and removes it when the
// subscription ends:
//
//	stream := database.Observe(ref, database.ChildPath("timeline"), database.JSONDecoder[Timeline]())
//	sub := stream.Subscribe(ctx)
//	defer sub.Close()
//	for result := range sub.Events() {
//		if result.Err != nil { ... }
//	}
//
// Snapshot values are handed to the decoder as canonical JSON. Only map-shaped
// values are decoded; any other shape yields a nil value.
package database
