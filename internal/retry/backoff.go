package retry

import "time"

// Backoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// 初回base、2倍ずつ増加、最大maxまで。
func Backoff(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	return delay
}
