package usecase

// fragmentBuffer is the append-only accumulation buffer of a recording session.
type fragmentBuffer struct {
	fragments [][]byte
	size      int
}

func newFragmentBuffer() *fragmentBuffer {
	return &fragmentBuffer{}
}

// Add stores a copy of fragment. Empty fragments are dropped.
func (b *fragmentBuffer) Add(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	owned := make([]byte, len(fragment))
	copy(owned, fragment)
	b.fragments = append(b.fragments, owned)
	b.size += len(owned)
}

// Fragments returns the accumulated fragments in capture order.
func (b *fragmentBuffer) Fragments() [][]byte {
	return b.fragments
}

// Size returns the total number of buffered bytes.
func (b *fragmentBuffer) Size() int {
	return b.size
}
