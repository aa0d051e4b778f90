package crypto

// MasterKey holds raw symmetric key bytes derived from a user password.
// It is never persisted. The session manager owns every live MasterKey;
// other components borrow it for the duration of one call via Bytes and
// must not retain the slice.
type MasterKey struct {
	b []byte
}

// NewMasterKey wraps raw key bytes. The MasterKey takes ownership of the
// slice.
func NewMasterKey(b []byte) *MasterKey {
	return &MasterKey{b: b}
}

// Bytes returns the raw key material. The slice is borrowed: it becomes
// invalid once Zero is called.
func (k *MasterKey) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.b
}

// Clone returns an independent copy of the key material. The session
// manager hands clones to borrowers so that zeroing the session's own
// key (lock, expiry, replacing unlock) cannot corrupt an encryption
// already in flight. The caller owns the clone and must Zero it.
func (k *MasterKey) Clone() *MasterKey {
	if k == nil || k.b == nil {
		return nil
	}
	b := make([]byte, len(k.b))
	copy(b, k.b)
	return &MasterKey{b: b}
}

// Zero overwrites the key material. Safe to call more than once and on a
// nil receiver. Callers that release a session must call this on every
// exit path, including error paths.
func (k *MasterKey) Zero() {
	if k == nil {
		return
	}
	zeroBytes(k.b)
	k.b = nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
