package util

// Histogram buckets shared by the service metrics. All are powers of two.
var (
	// MetricsBucketsMicroSeconds spans 128µs to 262ms, for single script or mempool checks.
	MetricsBucketsMicroSeconds = []float64{
		128e-6, 256e-6, 512e-6, 1024e-6, 2048e-6, 4096e-6, 8192e-6, 16384e-6, 32768e-6, 65536e-6, 131072e-6, 262144e-6,
	}

	// MetricsBucketsMilliSeconds spans 1ms to 4s, for context-free block checks.
	MetricsBucketsMilliSeconds = []float64{
		1e-3, 2e-3, 4e-3, 8e-3, 16e-3, 32e-3, 64e-3, 128e-3, 256e-3, 512e-3, 1024e-3, 2048e-3, 4096e-3,
	}

	// MetricsBucketsMilliLongSeconds spans 64ms to 131s, for connecting blocks and reorgs.
	MetricsBucketsMilliLongSeconds = []float64{
		64e-3, 128e-3, 256e-3, 512e-3, 1024e-3, 2048e-3, 4096e-3, 8192e-3, 16384e-3, 32768e-3, 65536e-3, 131072e-3,
	}

	MetricsBucketsSeconds = []float64{
		1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048,
	}

	// MetricsBucketsSize spans 128 bytes to 256KB, for transaction sizes.
	MetricsBucketsSize = []float64{
		128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768, 65536, 131072, 262144,
	}
)
