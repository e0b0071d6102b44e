// Package timing reads the GPU timing statistics CSV written by
// metrics.FrameMetrics.CSV back into per-object mean and median durations.
package timing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/born-ml/gputime/internal/metrics"
)

// ErrInvalidCSV is wrapped by every parse failure.
var ErrInvalidCSV = errors.New("invalid gpu timing csv")

// ObjectType is the kind of object a row describes.
type ObjectType uint8

const (
	Frame ObjectType = iota
	CommandBuffer
	RenderPass

	numObjectTypes
)

var objectNames = [numObjectTypes]string{
	Frame:         metrics.ObjectFrame,
	CommandBuffer: metrics.ObjectCommandBuffer,
	RenderPass:    metrics.ObjectRenderPass,
}

func (t ObjectType) String() string {
	if t < numObjectTypes {
		return objectNames[t]
	}
	return fmt.Sprintf("ObjectType(%d)", uint8(t))
}

// ParseObjectType maps a Type column value to an ObjectType.
func ParseObjectType(s string) (ObjectType, error) {
	if i := slices.Index(objectNames[:], s); i >= 0 {
		return ObjectType(i), nil
	}
	return 0, fmt.Errorf("%w: unknown object type %q", ErrInvalidCSV, s)
}

// Column indices.
const (
	ColumnType = iota
	ColumnID
	ColumnMean
	ColumnMedian

	numColumns
)

// Stats holds the durations of one row, in milliseconds.
type Stats struct {
	MeanMs   float64
	MedianMs float64
}

// Entry identifies a data row: the object kind and its position among
// objects of that kind.
type Entry struct {
	Type ObjectType
	ID   uint32
}

// Timing is a loaded statistics file.
type Timing struct {
	entries     []Entry // file order, header excluded
	stats       [numObjectTypes][]Stats
	totalFrames uint32
}

// LoadFile reads a .csv file.
func LoadFile(path string) (*Timing, error) {
	if ext := filepath.Ext(path); ext != ".csv" {
		return nil, fmt.Errorf("timing: %s: unexpected extension %q", path, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("timing: %w", err)
	}
	defer f.Close()

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("timing: %s: %w", path, err)
	}
	return t, nil
}

// Load parses a statistics CSV. The first record must be the metrics.CSVHeader
// row; ids must count up from 0 per object type, and exactly one Frame row may
// appear, whose id is the number of frames sampled.
func Load(r io.Reader) (*Timing, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	t := &Timing{}
	for row := 0; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			if row == 0 {
				return nil, fmt.Errorf("%w: empty input", ErrInvalidCSV)
			}
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
		}
		if len(record) != numColumns {
			return nil, fmt.Errorf("%w: row %d: %d columns, want %d", ErrInvalidCSV, row, len(record), numColumns)
		}
		if row == 0 {
			if !slices.Equal(record, metrics.CSVHeader) {
				return nil, fmt.Errorf("%w: header %q, want %q", ErrInvalidCSV,
					strings.Join(record, ","), strings.Join(metrics.CSVHeader, ","))
			}
			continue
		}
		if err := t.addRow(record); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
	}
}

func (t *Timing) addRow(record []string) error {
	objectType, err := ParseObjectType(record[ColumnType])
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(record[ColumnID], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: id %q is not an integer", ErrInvalidCSV, record[ColumnID])
	}
	mean, err := parseMs(record[ColumnMean])
	if err != nil {
		return err
	}
	median, err := parseMs(record[ColumnMedian])
	if err != nil {
		return err
	}

	entry := Entry{Type: objectType, ID: uint32(id)}
	if objectType == Frame {
		// The Frame row stores the number of sampled frames in its id.
		t.totalFrames = uint32(id)
		entry.ID = 0
	}
	if want := len(t.stats[objectType]); int(entry.ID) != want {
		return fmt.Errorf("%w: %s id %d, want %d", ErrInvalidCSV, objectType, entry.ID, want)
	}

	t.stats[objectType] = append(t.stats[objectType], Stats{MeanMs: mean, MedianMs: median})
	t.entries = append(t.entries, entry)
	return nil
}

func parseMs(s string) (float64, error) {
	if !strings.Contains(s, ".") {
		return 0, fmt.Errorf("%w: %q is not a float", ErrInvalidCSV, s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a float", ErrInvalidCSV, s)
	}
	return v, nil
}

// TotalFrames returns the number of frames the statistics were collected over.
func (t *Timing) TotalFrames() uint32 { return t.totalFrames }

// Rows returns the number of data rows.
func (t *Timing) Rows() int { return len(t.entries) }

// Count returns the number of rows of the given type.
func (t *Timing) Count(objectType ObjectType) int {
	if objectType >= numObjectTypes {
		return 0
	}
	return len(t.stats[objectType])
}

// Entries returns the data rows in file order.
func (t *Timing) Entries() []Entry { return slices.Clone(t.entries) }

// StatsByType returns the id-th object of the given type. The id is ignored
// for Frame.
func (t *Timing) StatsByType(objectType ObjectType, id uint32) (Stats, bool) {
	if objectType >= numObjectTypes {
		return Stats{}, false
	}
	if objectType == Frame {
		id = 0
	}
	if int(id) >= len(t.stats[objectType]) {
		return Stats{}, false
	}
	return t.stats[objectType][id], true
}

// StatsByRow returns the stats of a data row. Row 0 is the first row after
// the header, as in Cell and Table.
func (t *Timing) StatsByRow(row int) (Stats, bool) {
	if row < 0 || row >= len(t.entries) {
		return Stats{}, false
	}
	e := t.entries[row]
	return t.StatsByType(e.Type, e.ID)
}

// ColumnHeader returns the header text of col, or "" when out of range.
func ColumnHeader(col int) string {
	if col < 0 || col >= numColumns {
		return ""
	}
	return metrics.CSVHeader[col]
}

// Cell renders a table cell. Row 0 is the first data row. The Frame row's Id
// is the number of frames, as stored in the file. Durations are printed with
// four decimals.
func (t *Timing) Cell(row, col int) (string, error) {
	if row < 0 || row >= len(t.entries) {
		return "", fmt.Errorf("timing: row %d out of range [0,%d)", row, len(t.entries))
	}
	e := t.entries[row]
	stats, _ := t.StatsByType(e.Type, e.ID)

	switch col {
	case ColumnType:
		return e.Type.String(), nil
	case ColumnID:
		if e.Type == Frame {
			return strconv.FormatUint(uint64(t.totalFrames), 10), nil
		}
		return strconv.FormatUint(uint64(e.ID), 10), nil
	case ColumnMean:
		return strconv.FormatFloat(stats.MeanMs, 'f', 4, 64), nil
	case ColumnMedian:
		return strconv.FormatFloat(stats.MedianMs, 'f', 4, 64), nil
	default:
		return "", fmt.Errorf("timing: column %d out of range [0,%d)", col, numColumns)
	}
}

// Table returns the header and every row rendered with Cell.
func (t *Timing) Table() (header []string, rows [][]string) {
	header = slices.Clone(metrics.CSVHeader)
	rows = make([][]string, 0, len(t.entries))
	for r := range t.entries {
		row := make([]string, numColumns)
		for c := range row {
			row[c], _ = t.Cell(r, c)
		}
		rows = append(rows, row)
	}
	return header, rows
}
