package hub

// Message is one status-feed frame. The hub assigns Seq when the frame
// enters the broadcast loop; it starts at 1 and increases by one per frame,
// so a client can tell replayed backlog from live frames.
type Message struct {
	Seq  uint64
	Data []byte
}
