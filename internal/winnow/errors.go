package winnow

import "errors"

var (
	// ErrInvalidConfig is returned when k-gram length or window size is not positive.
	ErrInvalidConfig = errors.New("invalid winnow configuration")

	// ErrDuplicateFile is returned when a file id was already ingested.
	ErrDuplicateFile = errors.New("file already indexed")

	// ErrFileNotIndexed is returned when a lookup names an unknown file.
	ErrFileNotIndexed = errors.New("file not indexed")

	// ErrRegionOrder is returned when a file's token mapping is out of source order.
	ErrRegionOrder = errors.New("token regions out of source order")

	// ErrMappingLength is returned when tokens and mapping differ in length.
	ErrMappingLength = errors.New("token mapping length mismatch")
)
