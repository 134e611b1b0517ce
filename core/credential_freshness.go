package core

import "time"

// DefaultExpiryBuffer is the renewal margin applied before hard token expiry.
const DefaultExpiryBuffer = DefaultExpiryBufferSeconds * time.Second

// IsExpired reports whether now >= expiry - buffer. A nil expiry never expires.
func IsExpired(expiry *time.Time, buffer time.Duration) bool {
	return IsExpiredAt(time.Now().UTC(), expiry, buffer)
}

func IsExpiredAt(now time.Time, expiry *time.Time, buffer time.Duration) bool {
	if expiry == nil || expiry.IsZero() {
		return false
	}
	if buffer < 0 {
		buffer = 0
	}
	return !now.Before(expiry.Add(-buffer))
}

// IsExpiredSeconds mirrors IsExpired with the buffer expressed in seconds.
func IsExpiredSeconds(expiry *time.Time, bufferSeconds int) bool {
	return IsExpired(expiry, time.Duration(bufferSeconds)*time.Second)
}
