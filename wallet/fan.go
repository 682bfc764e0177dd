package wallet

import "crypto/rand"

// fanOutBuffers is how many XOR-combined buffers the wallet_key is split
// across while held in memory (supplemented feature, original source
// wallet.cpp:fan — "never held as one contiguous secret").
const fanOutBuffers = 1024

// fan reconstitutes its secret only at point of use, via XOR of N
// buffers, so a single memory scrape of the process is unlikely to catch
// the key in one contiguous run.
type fan struct {
	buffers [][]byte
	size    int
}

// newFan splits secret across fanOutBuffers XOR-combined buffers.
func newFan(secret []byte) (*fan, error) {
	f := &fan{size: len(secret), buffers: make([][]byte, fanOutBuffers)}
	acc := make([]byte, len(secret))
	copy(acc, secret)
	for i := 0; i < fanOutBuffers-1; i++ {
		buf := make([]byte, len(secret))
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		f.buffers[i] = buf
		xorInto(acc, buf)
	}
	f.buffers[fanOutBuffers-1] = acc
	return f, nil
}

// value XORs every buffer back together to reconstitute the secret.
func (f *fan) value() []byte {
	out := make([]byte, f.size)
	for _, buf := range f.buffers {
		xorInto(out, buf)
	}
	return out
}

// set replaces the fanned secret with a new value, re-splitting it.
func (f *fan) set(secret []byte) error {
	fresh, err := newFan(secret)
	if err != nil {
		return err
	}
	*f = *fresh
	return nil
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
