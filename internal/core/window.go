package core

// WindowStart returns the start block of the half-open window of width W
// containing block. A block window of width W is [⌊b/W⌋·W, ⌊b/W⌋·W + W).
func WindowStart(block, blocksPerWindow int64) int64 {
	return (block / blocksPerWindow) * blocksPerWindow
}

// WindowEnd returns the last block included in the window starting at
// windowStart (the window is half-open, so this is windowStart+W-1).
func WindowEnd(windowStart, blocksPerWindow int64) int64 {
	return windowStart + blocksPerWindow - 1
}

// PreviousWindow computes the previous window's [start,end] bounds
// relative to the window containing currentBlock, per spec §4.8 step 1.
// ok is false when there is no previous window yet (prev_start < 0).
func PreviousWindow(currentBlock, blocksPerWindow int64) (start, end int64, ok bool) {
	wStart := WindowStart(currentBlock, blocksPerWindow)
	prevStart := wStart - blocksPerWindow
	if prevStart < 0 {
		return 0, 0, false
	}
	return prevStart, prevStart + blocksPerWindow - 1, true
}
