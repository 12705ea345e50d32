// file: pkg/vdisk/fragmentation.go

package vdisk

// Run is a maximal sequence of consecutive free blocks
type Run struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// FreeRuns returns the maximal free runs of the table in ascending order
func FreeRuns(bt *BlockTable) []Run {
	var runs []Run
	inRun := false

	for i, owner := range bt.owners {
		if owner != NoFile {
			inRun = false
			continue
		}
		if !inRun {
			runs = append(runs, Run{Start: i})
			inRun = true
		}
		runs[len(runs)-1].Length++
	}
	return runs
}

// LargestFreeRun returns the length of the longest free run, 0 on a full disk
func LargestFreeRun(bt *BlockTable) int {
	largest := 0
	for _, run := range FreeRuns(bt) {
		if run.Length > largest {
			largest = run.Length
		}
	}
	return largest
}

// Fragmentation measures how much free space is unusable as one contiguous
// allocation: 100 * (1 - largest free run / free blocks). A full disk and a
// disk whose free space is a single run both score 0.
func Fragmentation(bt *BlockTable) float64 {
	free := bt.FreeCount()
	if free == 0 {
		return 0
	}
	return 100 * (1 - float64(LargestFreeRun(bt))/float64(free))
}
