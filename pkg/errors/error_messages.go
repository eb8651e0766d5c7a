package errors

// Standardized messages for each error code
var ErrorMessages = map[int]string{
	// InvalidInputError
	ErrInvalidDimensions: "Probed video dimensions are unusable. The source must have positive width and height.",
	ErrInvalidInputRef:   "Input reference could not be resolved. Expected an s3://, http(s):// or local path reference.",
	ErrInvalidPlan:       "Stored variant plan is malformed. Requeue the job to replan from scratch.",

	// ProbeError
	ErrProbeExec:          "ffprobe execution failed. Check that ffprobe is installed and the source is reachable.",
	ErrProbeParse:         "ffprobe produced unparseable output for the source.",
	ErrProbeNoVideoStream: "No video stream found in the source file.",

	// EncodeError
	ErrEncodeStart:      "Encoder process failed to start. Check that ffmpeg is installed.",
	ErrEncodeExit:       "Encoder process exited with an error.",
	ErrEncodeSource:     "Encoder lost access to the remote source mid-run.",
	ErrEncodeCancelled:  "Encoder run was cancelled.",
	ErrThumbnailFrame:   "Failed to extract a thumbnail frame from the source.",
	ErrThumbnailResize:  "Failed to resize or encode the thumbnail image.",
	ErrEncodeIncomplete: "Encoder produced an incomplete or malformed variant playlist.",

	// UploadError
	ErrUploadSegment:   "Failed to upload a media segment to object storage.",
	ErrUploadPlaylist:  "Failed to upload a variant playlist to object storage.",
	ErrUploadMaster:    "Failed to upload the master playlist to object storage.",
	ErrUploadThumbnail: "Failed to upload the thumbnail to object storage.",
	ErrDeleteObject:    "Failed to delete an object from storage.",
	ErrPresign:         "Failed to presign a read URL for the source object.",

	// TimeoutError
	ErrJobTimeout: "Job exceeded its processing deadline and was terminated.",

	// StorageError
	ErrJobStoreOpen:    "Failed to open the job record database.",
	ErrJobStoreQuery:   "Job record query failed.",
	ErrJobNotFound:     "No job record exists for the given asset id.",
	ErrJobStoreMigrate: "Job record schema migration failed.",

	// ConfigError
	ErrConfigLoad:    "Configuration file could not be read or parsed.",
	ErrConfigInvalid: "Configuration failed validation.",

	// QueueError
	ErrQueueConnect: "Failed to connect to the intake broker.",
	ErrQueueConsume: "Failed to fetch a message from the intake topic.",
	ErrQueuePublish: "Failed to publish a message to the intake topic.",
}

// GetErrorMessage returns the standardized message for an error code.
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "Unknown error."
}
