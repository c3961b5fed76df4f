// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/heapscope/lib/clock"
	"github.com/bureau-foundation/heapscope/server"
	"github.com/bureau-foundation/heapscope/space"
)

// Event IDs reported by the synthetic heap.
const (
	EventCollectionStart = 0
	EventCollectionEnd   = 1
)

// Events names the synthetic heap's events, indexed by event ID.
var Events = []string{"collection start", "collection end"}

// Card states shown by the card stream.
const (
	CardClean uint8 = iota
	CardDirty
	CardSummarised
)

var cardNames = []string{"clean", "dirty", "summarised"}

const (
	imageBase     = 0x01000000
	imageTileSize = 256 << 10
	imageTiles    = 24

	mainBase     = 0x02000000
	mainTileSize = 1 << 20
	mainMaxTiles = 64
)

// phase is one step of the main space's growth cycle: the space spans
// limit tiles, of which the first end hold objects.
type phase struct {
	limit int
	end   int
}

var phases = []phase{
	{limit: 32, end: 20},
	{limit: 48, end: 41},
	{limit: 64, end: 57},
}

// Heap is a synthetic two-space heap driving a server. The image space
// has a fixed size; the main space grows through phases and shrinks
// back after the largest one, so monitors see both stream updates and
// space resizes.
type Heap struct {
	server *server.Server
	clock  clock.Clock
	logger *slog.Logger

	image *region
	main  *region

	cycle int
}

// region is one space with the streams every synthetic space carries.
type region struct {
	space    *server.ServerSpace
	base     uint32
	tileSize int32
	used     uint8
	objects  uint8
	roots    uint8
	cards    uint8
}

// Options configures New.
type Options struct {
	// Clock paces Run. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives a line per collection cycle. Nil discards.
	Logger *slog.Logger
}

// New adds the image and main spaces to s and fills them with the
// first phase. s must have been created with Events.
func New(s *server.Server, options Options) (*Heap, error) {
	if len(s.Events()) != len(Events) {
		return nil, fmt.Errorf("server reports %d events, synthetic heap needs %d", len(s.Events()), len(Events))
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	image, err := newRegion(s, "image space", imageTiles, imageBase, imageTileSize, false)
	if err != nil {
		return nil, err
	}
	main, err := newRegion(s, "main space", phases[0].limit, mainBase, mainTileSize, true)
	if err != nil {
		return nil, err
	}
	h := &Heap{server: s, clock: options.Clock, logger: options.Logger, image: image, main: main}
	s.SetGeneralInfo(h.generalInfo())
	if err := h.populate(); err != nil {
		return nil, err
	}
	return h, nil
}

func newRegion(s *server.Server, name string, tiles int, base uint32, tileSize int32, main bool) (*region, error) {
	blockInfo := "Block size: " + humanize.IBytes(uint64(tileSize))
	r := &region{
		space:    server.NewServerSpace(name, "synthetic", tiles, "Tile", blockInfo, main),
		base:     base,
		tileSize: tileSize,
	}
	streams := []*space.Stream{
		{
			Name:         "Used Space",
			DataType:     space.DataInt,
			MaxValue:     tileSize,
			Suffix:       " bytes",
			Presentation: space.PresentPercent,
			PaintStyle:   space.PaintZero,
			Color:        space.Color{R: 255},
		},
		{
			Name:         "Objects",
			DataType:     space.DataShort,
			MaxValue:     1024,
			Suffix:       " objects",
			Presentation: space.PresentMaxVar,
			PaintStyle:   space.PaintZero,
			Color:        space.Color{G: 200},
		},
		{
			Name:         "Roots",
			DataType:     space.DataShort,
			MaxValue:     16,
			Suffix:       " roots",
			Presentation: space.PresentPlus,
			PaintStyle:   space.PaintZero,
			Color:        space.Color{B: 255},
		},
		{
			Name:         "Card Marking",
			DataType:     space.DataByte,
			MaxValue:     int32(len(cardNames) - 1),
			Presentation: space.PresentEnum,
			PaintStyle:   space.PaintPlain,
			Color:        space.Color{R: 255, G: 200},
			EnumNames:    cardNames,
		},
	}
	ids := make([]uint8, len(streams))
	for i, stream := range streams {
		id, err := r.space.AddStream(stream)
		if err != nil {
			return nil, fmt.Errorf("adding stream %q to %s: %w", stream.Name, name, err)
		}
		ids[i] = id
	}
	r.used, r.objects, r.roots, r.cards = ids[0], ids[1], ids[2], ids[3]
	if err := r.nameTiles(tiles); err != nil {
		return nil, err
	}
	if _, err := s.AddServerSpace(r.space); err != nil {
		return nil, fmt.Errorf("adding %s: %w", name, err)
	}
	return r, nil
}

// nameTiles labels each tile with its address range. Names travel with
// the space description, which Resize already flags for resending.
func (r *region) nameTiles(tiles int) error {
	for i := range tiles {
		start := r.base + uint32(i)*uint32(r.tileSize)
		if err := r.space.SetTileName(i, fmt.Sprintf("[0x%08x-0x%08x)", start, start+uint32(r.tileSize))); err != nil {
			return err
		}
	}
	return nil
}

func (h *Heap) generalInfo() string {
	var b strings.Builder
	b.WriteString("Synthetic heap\n")
	b.WriteString("Collector: none\n")
	fmt.Fprintf(&b, "%d spaces\n", h.server.SpaceCount())
	fmt.Fprintf(&b, "Image: %s in %d tiles\n", humanize.IBytes(imageTiles*imageTileSize), imageTiles)
	fmt.Fprintf(&b, "Main: up to %s in %d tiles", humanize.IBytes(mainMaxTiles*mainTileSize), mainMaxTiles)
	return b.String()
}

// Cycle returns the number of completed collection cycles.
func (h *Heap) Cycle() int { return h.cycle }

// Phase returns the main space's current limit and end in tiles.
func (h *Heap) Phase() (limit, end int) {
	p := phases[h.cycle%len(phases)]
	return p.limit, p.end
}

// Collect runs one collection cycle: the start event, an update of
// both spaces for the next phase, then the end event. Each boundary
// runs a safepoint, so Collect blocks while a monitor holds the
// program paused.
func (h *Heap) Collect() error {
	if err := h.boundary(EventCollectionStart); err != nil {
		return err
	}
	h.cycle++
	h.server.StartCompensationTimer()
	err := h.populate()
	h.server.StopCompensationTimer()
	if err != nil {
		return err
	}
	limit, end := h.Phase()
	h.logger.Debug("collection cycle",
		"cycle", h.cycle,
		"limit_tiles", limit,
		"end_tiles", end,
	)
	return h.boundary(EventCollectionEnd)
}

// boundary reports eventID. Boundaries the filters suppress still run
// a safepoint so pause and shutdown requests take effect.
func (h *Heap) boundary(eventID int) error {
	transmitted := h.server.ShouldTransmit(eventID)
	if err := h.server.CountingEventBoundary(eventID); err != nil {
		return err
	}
	if !transmitted {
		h.server.Safepoint()
	}
	return nil
}

// Run collects every interval until ctx is done.
func (h *Heap) Run(ctx context.Context, interval time.Duration) error {
	for {
		if err := h.Collect(); err != nil {
			return err
		}
		timer := h.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (h *Heap) populate() error {
	limit, end := h.Phase()
	if h.main.space.TileCount() != limit {
		if err := h.main.space.Resize(limit); err != nil {
			return err
		}
		if err := h.main.nameTiles(limit); err != nil {
			return err
		}
	}
	if err := h.image.fill(imageTiles, imageTiles-1, h.cycle); err != nil {
		return err
	}
	return h.main.fill(limit, end, h.cycle)
}

// fill lays out objects in the first end tiles of a tiles-long region.
// The tile at end-1 is the allocation frontier and is half full.
func (r *region) fill(tiles, end, cycle int) error {
	used := make([]int32, tiles)
	objects := make([]int16, tiles)
	roots := make([]int16, tiles)
	cards := make([]uint8, tiles)

	var totalUsed, totalObjects, totalRoots int32
	cardCounts := make([]int32, len(cardNames))
	for i := range tiles {
		if i < end {
			used[i] = r.tileSize
			if i == end-1 {
				used[i] = r.tileSize / 2
			}
			// Object density varies with the tile and cycle so
			// successive frames differ.
			objects[i] = int16(64 + (i*37+cycle*11)%448)
			if i%7 == cycle%7 {
				roots[i] = int16(1 + (i+cycle)%15)
			}
			switch {
			case i%16 == 0:
				cards[i] = CardSummarised
			case (i+cycle)%5 == 0:
				cards[i] = CardDirty
			}
		}
		totalUsed += used[i]
		totalObjects += int32(objects[i])
		totalRoots += int32(roots[i])
		cardCounts[cards[i]]++
	}

	s := r.space
	if err := s.SetInts(r.used, used); err != nil {
		return err
	}
	if err := s.SetShorts(r.objects, objects); err != nil {
		return err
	}
	if err := s.SetShorts(r.roots, roots); err != nil {
		return err
	}
	if err := s.SetBytes(r.cards, cards); err != nil {
		return err
	}
	if err := s.SetSummary(r.used, []int32{totalUsed, int32(tiles) * r.tileSize}); err != nil {
		return err
	}
	if err := s.SetSummary(r.objects, []int32{totalObjects}); err != nil {
		return err
	}
	if err := s.SetSummary(r.roots, []int32{totalRoots}); err != nil {
		return err
	}
	if err := s.SetSummary(r.cards, cardCounts); err != nil {
		return err
	}

	s.ResetControl()
	if end < tiles {
		if err := s.SetControlRange(space.ControlUnused, end, tiles-end); err != nil {
			return err
		}
	}
	limitAddress := r.base + uint32(tiles)*uint32(r.tileSize)
	endAddress := r.base + uint32(end)*uint32(r.tileSize)
	s.SetSpaceInfo(fmt.Sprintf("Start: 0x%08x\nEnd: 0x%08x\nLimit: 0x%08x\nUsed: %s",
		r.base, endAddress, limitAddress, humanize.IBytes(uint64(totalUsed))))
	return nil
}
