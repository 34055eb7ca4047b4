package domain

import "slices"

// IsValidBoard reports whether board is a permutation of 1..gridSize².
func IsValidBoard(board []int, gridSize int) bool {
	cells := gridSize * gridSize
	if gridSize <= 0 || len(board) != cells {
		return false
	}
	seen := make([]bool, cells+1)
	for _, n := range board {
		if n < 1 || n > cells || seen[n] {
			return false
		}
		seen[n] = true
	}
	return true
}

// CompletedLines counts the rows, columns and both diagonals of board whose
// every cell has been called.
func CompletedLines(board, called []int, gridSize int) int {
	if len(board) != gridSize*gridSize {
		return 0
	}
	marked := make(map[int]struct{}, len(called))
	for _, n := range called {
		marked[n] = struct{}{}
	}
	isMarked := func(row, col int) bool {
		_, ok := marked[board[row*gridSize+col]]
		return ok
	}

	lines := 0
	for i := 0; i < gridSize; i++ {
		rowDone, colDone := true, true
		for j := 0; j < gridSize && (rowDone || colDone); j++ {
			rowDone = rowDone && isMarked(i, j)
			colDone = colDone && isMarked(j, i)
		}
		if rowDone {
			lines++
		}
		if colDone {
			lines++
		}
	}

	diag, anti := true, true
	for i := 0; i < gridSize; i++ {
		diag = diag && isMarked(i, i)
		anti = anti && isMarked(i, gridSize-1-i)
	}
	if diag {
		lines++
	}
	if anti {
		lines++
	}
	return lines
}

func numberInRange(n, gridSize int) bool {
	return n >= 1 && n <= gridSize*gridSize
}

func isCalled(called []int, n int) bool {
	return slices.Contains(called, n)
}
