//go:build !linux && !darwin

package security

func peerUID(int) (int, error) {
	return -1, ErrNotSupported
}
