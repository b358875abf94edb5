package image

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"runtime"
	"sync"
	"sync/atomic"
)

// Region is the bounding box of a connected cluster of differing
// pixels, in the coordinate space of the current capture.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// RegionDiff classifies pixels exactly like PixelDiff but renders the
// diff as outlined bounding boxes instead of painting every differing
// pixel, which reads better for reviewing large layout shifts.
type RegionDiff struct {
	tolerance int
}

func NewRegionDiff(tolerance int) *RegionDiff {
	if tolerance < 0 {
		tolerance = 0
	}
	if tolerance > 255 {
		tolerance = 255
	}
	return &RegionDiff{
		tolerance: tolerance,
	}
}

func (r *RegionDiff) Compare(baseline image.Image, current image.Image) *DiffResult {
	baselineWidth := baseline.Bounds().Dx()
	baselineHeight := baseline.Bounds().Dy()
	currentWidth := current.Bounds().Dx()
	currentHeight := current.Bounds().Dy()

	if baselineWidth != currentWidth || baselineHeight != currentHeight {
		total := currentWidth * currentHeight
		return &DiffResult{
			DiffPercentage:      1.0,
			DifferentPixelCount: total,
			TotalPixelCount:     total,
			Succeeded:           true,
			Message: fmt.Sprintf(
				"dimension mismatch: baseline is %dx%d, current is %dx%d",
				baselineWidth, baselineHeight, currentWidth, currentHeight,
			),
		}
	}

	if err := validateBuffer(baseline); err != nil {
		return &DiffResult{
			Succeeded: false,
			Message:   fmt.Sprintf("unreadable baseline buffer: %s", err),
		}
	}
	if err := validateBuffer(current); err != nil {
		return &DiffResult{
			Succeeded: false,
			Message:   fmt.Sprintf("unreadable current buffer: %s", err),
		}
	}

	totalPixelCount := currentWidth * currentHeight

	if baseline == current {
		return &DiffResult{
			DiffPercentage:  0.0,
			TotalPixelCount: totalPixelCount,
			Succeeded:       true,
		}
	}

	diffMap := make([][]bool, currentHeight)
	for i := range diffMap {
		diffMap[i] = make([]bool, currentWidth)
	}

	differentPixelCount := r.populateDiffMap(baseline, current, diffMap, currentWidth, currentHeight)

	diffPercentage := 0.0
	if totalPixelCount > 0 {
		diffPercentage = float64(differentPixelCount) / float64(totalPixelCount)
	}

	result := &DiffResult{
		DiffPercentage:      diffPercentage,
		DifferentPixelCount: int(differentPixelCount),
		TotalPixelCount:     totalPixelCount,
		Succeeded:           true,
	}
	if differentPixelCount == 0 {
		return result
	}

	bounds := current.Bounds()
	diff := image.NewRGBA(bounds)
	draw.Draw(diff, bounds, current, bounds.Min, draw.Src)

	for _, region := range mergeRegions(findRegions(diffMap, currentWidth, currentHeight)) {
		drawOutline(diff, region)
	}
	result.Image = diff

	return result
}

// populateDiffMap marks differing pixels row-sharded across
// GOMAXPROCS workers, the same classification PixelDiff applies.
func (r *RegionDiff) populateDiffMap(baseline image.Image, current image.Image, diffMap [][]bool, width int, height int) int64 {
	baselineMin := baseline.Bounds().Min
	currentMin := current.Bounds().Min

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	numWorkers := runtime.GOMAXPROCS(0)
	rowsPerWorker := height / numWorkers

	var counter int64
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = height
		}

		go func(startY int, endY int) {
			defer wg.Done()
			var local int64
			for y := startY; y < endY; y++ {
				for x := 0; x < width; x++ {
					baselineColor := color.NRGBAModel.Convert(baseline.At(baselineMin.X+x, baselineMin.Y+y)).(color.NRGBA)
					currentColor := color.NRGBAModel.Convert(current.At(currentMin.X+x, currentMin.Y+y)).(color.NRGBA)

					if channelDelta(baselineColor.R, currentColor.R) > r.tolerance ||
						channelDelta(baselineColor.G, currentColor.G) > r.tolerance ||
						channelDelta(baselineColor.B, currentColor.B) > r.tolerance {
						diffMap[y][x] = true
						local++
					}
				}
			}
			atomic.AddInt64(&counter, local)
		}(startY, endY)
	}

	wg.Wait()
	return counter
}

// findRegions collects the 8-connected clusters of differing pixels as
// bounding boxes.
func findRegions(diffMap [][]bool, width int, height int) []Region {
	visited := make([][]bool, height)
	for i := range visited {
		visited[i] = make([]bool, width)
	}

	var regions []Region
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if diffMap[y][x] && !visited[y][x] {
				regions = append(regions, boundingBox(diffMap, visited, x, y, width, height))
			}
		}
	}
	return regions
}

func boundingBox(diffMap [][]bool, visited [][]bool, startX int, startY int, width int, height int) Region {
	minX := startX
	minY := startY
	maxX := startX
	maxY := startY

	queue := []image.Point{{X: startX, Y: startY}}
	visited[startY][startX] = true

	for len(queue) > 0 {
		point := queue[0]
		queue = queue[1:]

		if point.X < minX {
			minX = point.X
		}
		if point.X > maxX {
			maxX = point.X
		}
		if point.Y < minY {
			minY = point.Y
		}
		if point.Y > maxY {
			maxY = point.Y
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx := point.X + dx
				ny := point.Y + dy
				if nx >= 0 && nx < width && ny >= 0 && ny < height &&
					diffMap[ny][nx] && !visited[ny][nx] {
					visited[ny][nx] = true
					queue = append(queue, image.Point{X: nx, Y: ny})
				}
			}
		}
	}

	return Region{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}
}

// mergeRegions folds overlapping and nearby boxes together so a single
// shifted paragraph reads as one region instead of dozens of slivers.
func mergeRegions(regions []Region) []Region {
	if len(regions) <= 1 {
		return regions
	}

	const gap = 10

	merged := make([]Region, 0, len(regions))
	used := make([]bool, len(regions))

	for i := 0; i < len(regions); i++ {
		if used[i] {
			continue
		}

		current := regions[i]
		mergedAny := true
		for mergedAny {
			mergedAny = false
			for j := i + 1; j < len(regions); j++ {
				if used[j] {
					continue
				}
				if regionsOverlap(expand(current, gap), expand(regions[j], gap)) {
					current = combine(current, regions[j])
					used[j] = true
					mergedAny = true
				}
			}
		}

		merged = append(merged, current)
	}

	return merged
}

func regionsOverlap(a Region, b Region) bool {
	return !(a.X+a.Width <= b.X || b.X+b.Width <= a.X ||
		a.Y+a.Height <= b.Y || b.Y+b.Height <= a.Y)
}

func expand(r Region, by int) Region {
	return Region{
		X:      r.X - by,
		Y:      r.Y - by,
		Width:  r.Width + 2*by,
		Height: r.Height + 2*by,
	}
}

func combine(a Region, b Region) Region {
	minX := a.X
	if b.X < minX {
		minX = b.X
	}
	minY := a.Y
	if b.Y < minY {
		minY = b.Y
	}
	maxX := a.X + a.Width
	if b.X+b.Width > maxX {
		maxX = b.X + b.Width
	}
	maxY := a.Y + a.Height
	if b.Y+b.Height > maxY {
		maxY = b.Y + b.Height
	}
	return Region{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}

// drawOutline traces a 3 pixel frame in the same sentinel color the
// pixel differ paints with.
func drawOutline(diff *image.RGBA, region Region) {
	bounds := diff.Bounds()
	outline := color.RGBA{R: sentinelR, G: sentinelG, B: sentinelB, A: 255}

	for thickness := 0; thickness < 3; thickness++ {
		for x := region.X - thickness; x < region.X+region.Width+thickness; x++ {
			if x >= bounds.Min.X && x < bounds.Max.X {
				if y := region.Y - thickness; y >= bounds.Min.Y {
					diff.Set(x, y, outline)
				}
				if y := region.Y + region.Height + thickness; y < bounds.Max.Y {
					diff.Set(x, y, outline)
				}
			}
		}
		for y := region.Y - thickness; y < region.Y+region.Height+thickness; y++ {
			if y >= bounds.Min.Y && y < bounds.Max.Y {
				if x := region.X - thickness; x >= bounds.Min.X {
					diff.Set(x, y, outline)
				}
				if x := region.X + region.Width + thickness; x < bounds.Max.X {
					diff.Set(x, y, outline)
				}
			}
		}
	}
}
