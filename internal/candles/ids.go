package candles

import "fmt"

func candleTraceID(underlying string, bucketTS, intervalMs int64) string {
	return fmt.Sprintf("candle:%s:%d:%d", underlying, bucketTS, intervalMs)
}
