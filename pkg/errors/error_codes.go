package errors

// Error codes grouped by component
const (
	// InvalidInputError codes (1000-1099)
	ErrInvalidDimensions = 1000
	ErrInvalidInputRef   = 1001
	ErrInvalidPlan       = 1002

	// ProbeError codes (1100-1199)
	ErrProbeExec          = 1100
	ErrProbeParse         = 1101
	ErrProbeNoVideoStream = 1102

	// EncodeError codes (1200-1299)
	ErrEncodeStart      = 1200
	ErrEncodeExit       = 1201
	ErrEncodeSource     = 1202
	ErrEncodeCancelled  = 1203
	ErrThumbnailFrame   = 1204
	ErrThumbnailResize  = 1205
	ErrEncodeIncomplete = 1206

	// UploadError codes (1300-1399)
	ErrUploadSegment   = 1300
	ErrUploadPlaylist  = 1301
	ErrUploadMaster    = 1302
	ErrUploadThumbnail = 1303
	ErrDeleteObject    = 1304
	ErrPresign         = 1305

	// TimeoutError codes (1400-1499)
	ErrJobTimeout = 1400

	// StorageError codes (1500-1599)
	ErrJobStoreOpen    = 1500
	ErrJobStoreQuery   = 1501
	ErrJobNotFound     = 1502
	ErrJobStoreMigrate = 1503

	// ConfigError codes (1600-1699)
	ErrConfigLoad    = 1600
	ErrConfigInvalid = 1601

	// QueueError codes (1700-1799)
	ErrQueueConnect = 1700
	ErrQueueConsume = 1701
	ErrQueuePublish = 1702
)
