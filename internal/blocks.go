package internal

// SizeKB converts a byte length to whole kilobytes, rounding up.
func SizeKB(bytes int64) int {
	return int((bytes + 1023) / 1024)
}

// BlocksNeeded returns how many blocks of blockSizeKB hold sizeKB, never less than one.
func BlocksNeeded(sizeKB, blockSizeKB int) int {
	if blockSizeKB <= 0 {
		return 1
	}
	n := (sizeKB + blockSizeKB - 1) / blockSizeKB
	if n < 1 {
		return 1
	}
	return n
}
