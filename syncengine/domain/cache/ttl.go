package cache

import "time"

// TTLs maps each resource kind to its time-to-live.
type TTLs map[Kind]time.Duration

// DefaultTTLs are tuning defaults; they are configurable through core/config.
func DefaultTTLs() TTLs {
	return TTLs{
		KindMedia:         5 * time.Minute,
		KindComments:      2 * time.Minute,
		KindLikes:         1 * time.Minute,
		KindProfiles:      10 * time.Minute,
		KindNotifications: 1 * time.Minute,
	}
}

// For returns the TTL for kind, or zero when the kind is unknown (always a miss).
func (t TTLs) For(kind Kind) time.Duration {
	if t == nil {
		return 0
	}
	return t[kind]
}
