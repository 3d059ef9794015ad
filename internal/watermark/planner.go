// Package watermark plans the forensic overlay stamped on every rendered page.
//
// Planning is a pure function of the viewer identity, a short device marker,
// the page position and the wall clock truncated to the minute. The renderer
// draws the plan; this package never touches pixels.
package watermark

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	dErrors "docguard/pkg/domain-errors"
)

const (
	DefaultProductTag = "DOCGUARD"
	DefaultAngle      = -15.0
	DefaultOpacity    = 0.14
	DefaultColumns    = 3
	DefaultRows       = 5
	deviceMarkerLen   = 6
	textSeparator     = " · "
	minuteLayout      = "2006-01-02 15:04 UTC"
)

// Identity is who the page is licensed to.
type Identity struct {
	DisplayName   string `json:"display_name"`
	ContactHandle string `json:"contact_handle"`
}

// Point is a position in normalized viewport coordinates: (0,0) is the top
// left corner and (1,1) the bottom right.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Tile is one watermark instance anchored at its center.
type Tile struct {
	Center  Point `json:"center"`
	Primary bool  `json:"primary,omitempty"`
}

// Plan describes what to draw. It is derived on demand and never persisted.
type Plan struct {
	Text             string    `json:"text"`
	Angle            float64   `json:"angle"`
	Opacity          float64   `json:"opacity"`
	TileOriginOffset Point     `json:"tile_origin_offset"`
	Primary          Tile      `json:"primary"`
	Tiles            []Tile    `json:"tiles"`
	Page             int       `json:"page"`
	TotalPages       int       `json:"total_pages"`
	Minute           time.Time `json:"minute"`
}

// Encode returns the canonical byte form of the plan.
func (p Plan) Encode() []byte {
	b, err := json.Marshal(p)
	if err != nil {
		// Plan holds only plain values; Marshal cannot fail on it.
		panic(fmt.Sprintf("watermark: encode plan: %v", err))
	}
	return b
}

// Fingerprint is a short digest of the canonical encoding, handy for logs and
// for observers deciding whether to redraw.
func (p Plan) Fingerprint() string {
	sum := sha256.Sum256(p.Encode())
	return hex.EncodeToString(sum[:8])
}

// Planner holds the layout configuration shared by all sessions.
type Planner struct {
	productTag string
	angle      float64
	opacity    float64
	columns    int
	rows       int
}

type Option func(*Planner)

func WithProductTag(tag string) Option {
	return func(p *Planner) {
		if tag = strings.TrimSpace(tag); tag != "" {
			p.productTag = tag
		}
	}
}

func WithOpacity(opacity float64) Option {
	return func(p *Planner) {
		if opacity > 0 && opacity <= 1 {
			p.opacity = opacity
		}
	}
}

// WithGrid sets the fallback grid density.
func WithGrid(columns, rows int) Option {
	return func(p *Planner) {
		if columns > 0 && rows > 0 {
			p.columns, p.rows = columns, rows
		}
	}
}

func New(opts ...Option) *Planner {
	p := &Planner{
		productTag: DefaultProductTag,
		angle:      DefaultAngle,
		opacity:    DefaultOpacity,
		columns:    DefaultColumns,
		rows:       DefaultRows,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan composes the watermark for one page at one minute.
func (p *Planner) Plan(id Identity, deviceIDSuffix string, page, totalPages int, now time.Time) (Plan, error) {
	if totalPages < 1 {
		return Plan{}, dErrors.New(dErrors.CodeInvalidInput, "total pages must be at least 1")
	}
	if page < 1 || page > totalPages {
		return Plan{}, dErrors.New(dErrors.CodePageOutOfRange, fmt.Sprintf("page %d outside 1..%d", page, totalPages))
	}

	minute := now.UTC().Truncate(time.Minute)
	text := strings.Join([]string{
		p.productTag,
		orUnknown(id.DisplayName),
		orUnknown(id.ContactHandle),
		"dev:" + shortDevice(deviceIDSuffix),
		minute.Format(minuteLayout),
		fmt.Sprintf("%d/%d", page, totalPages),
	}, textSeparator)

	spacingX := 1 / float64(p.columns)
	spacingY := 1 / float64(p.rows)
	offset := originOffset(text, spacingX, spacingY)

	return Plan{
		Text:             text,
		Angle:            p.angle,
		Opacity:          p.opacity,
		TileOriginOffset: offset,
		Primary:          Tile{Center: Point{X: 0.5, Y: 0.5}, Primary: true},
		Tiles:            p.grid(offset, spacingX, spacingY),
		Page:             page,
		TotalPages:       totalPages,
		Minute:           minute,
	}, nil
}

// grid lays a staggered pattern one cell beyond every edge so that any crop
// of the viewport larger than a cell still holds a whole instance.
func (p *Planner) grid(offset Point, spacingX, spacingY float64) []Tile {
	tiles := make([]Tile, 0, (p.columns+2)*(p.rows+2))
	for r := -1; r <= p.rows; r++ {
		stagger := 0.0
		if r%2 != 0 {
			stagger = spacingX / 2
		}
		for c := -1; c <= p.columns; c++ {
			x := offset.X + float64(c)*spacingX + stagger
			y := offset.Y + float64(r)*spacingY
			if x < -spacingX || x > 1+spacingX || y < -spacingY || y > 1+spacingY {
				continue
			}
			tiles = append(tiles, Tile{Center: Point{X: round4(x), Y: round4(y)}})
		}
	}
	return tiles
}

// originOffset shifts the grid by a digest of the text so the pattern itself
// changes with every minute and page, not just the words.
func originOffset(text string, spacingX, spacingY float64) Point {
	sum := sha256.Sum256([]byte(text))
	fx := float64(binary.BigEndian.Uint16(sum[0:2])) / math.MaxUint16
	fy := float64(binary.BigEndian.Uint16(sum[2:4])) / math.MaxUint16
	return Point{X: round4(fx * spacingX), Y: round4(fy * spacingY)}
}

func shortDevice(suffix string) string {
	r := []rune(strings.TrimSpace(suffix))
	if len(r) == 0 {
		return "unknown"
	}
	if len(r) > deviceMarkerLen {
		r = r[len(r)-deviceMarkerLen:]
	}
	return strings.ToUpper(string(r))
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
