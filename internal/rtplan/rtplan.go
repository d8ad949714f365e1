// Package rtplan reads RT Ion Plan files into container-independent plan records.
package rtplan

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrMalformedPlan is returned when a plan lacks an element every ion plan must carry.
var ErrMalformedPlan = errors.New("malformed RT ion plan")

// Standard attributes.
var (
	tagPatientName          = tag.Tag{Group: 0x0010, Element: 0x0010}
	tagPatientID            = tag.Tag{Group: 0x0010, Element: 0x0020}
	tagPlanLabel            = tag.Tag{Group: 0x300A, Element: 0x0002}
	tagMachineName          = tag.Tag{Group: 0x300A, Element: 0x00B2}
	tagLeafBoundaries       = tag.Tag{Group: 0x300A, Element: 0x00BE}
	tagBeamNumber           = tag.Tag{Group: 0x300A, Element: 0x00C0}
	tagBeamName             = tag.Tag{Group: 0x300A, Element: 0x00C2}
	tagBeamDescription      = tag.Tag{Group: 0x300A, Element: 0x00C3}
	tagNumberOfBlocks       = tag.Tag{Group: 0x300A, Element: 0x00F0}
	tagBlockData            = tag.Tag{Group: 0x300A, Element: 0x0106}
	tagControlPointIndex    = tag.Tag{Group: 0x300A, Element: 0x0112}
	tagNominalBeamEnergy    = tag.Tag{Group: 0x300A, Element: 0x0114}
	tagDevicePositionSeq    = tag.Tag{Group: 0x300A, Element: 0x011A}
	tagLeafJawPositions     = tag.Tag{Group: 0x300A, Element: 0x011C}
	tagCumulativeMeterset   = tag.Tag{Group: 0x300A, Element: 0x0134}
	tagIonBeamSeq           = tag.Tag{Group: 0x300A, Element: 0x03A2}
	tagIonLimitingDeviceSeq = tag.Tag{Group: 0x300A, Element: 0x03A4}
	tagIonBlockSeq          = tag.Tag{Group: 0x300A, Element: 0x03A6}
	tagIonControlPointSeq   = tag.Tag{Group: 0x300A, Element: 0x03A8}
)

// Vendor private attributes of the spot scanning delivery system.
var (
	tagTuneID       = tag.Tag{Group: 0x300B, Element: 0x1090}
	tagNumPositions = tag.Tag{Group: 0x300B, Element: 0x1092}
	tagPositionMap  = tag.Tag{Group: 0x300B, Element: 0x1094}
	tagWeightMap    = tag.Tag{Group: 0x300B, Element: 0x1096}
)

// Reader loads RT Ion Plan files from disk.
type Reader struct {
	IncludeSetup bool // keep beams that only position the patient
}

var _ contract.PlanSource = (*Reader)(nil) // Compile-time check

// NewReader returns a reader that skips setup beams unless includeSetup is set.
func NewReader(includeSetup bool) *Reader {
	return &Reader{IncludeSetup: includeSetup}
}

// ReadPlan implements contract.PlanSource.
func (r *Reader) ReadPlan(ctx context.Context, path string) (*schema.PlanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read plan: %w", err)
	}
	return r.Decode(ctx, path, data)
}

// Decode parses plan bytes that were already read from path.
func (r *Reader) Decode(ctx context.Context, path string, data []byte) (*schema.PlanRecord, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("cannot parse plan %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return r.FromDataset(ds, path, hex.EncodeToString(sum[:]))
}

// FromDataset extracts the plan record from an already parsed dataset.
func (r *Reader) FromDataset(ds dicom.Dataset, path, digest string) (*schema.PlanRecord, error) {
	plan := &schema.PlanRecord{
		SourcePath:  path,
		Digest:      digest,
		PatientID:   stringOf(find(ds.Elements, tagPatientID)),
		PatientName: stringOf(find(ds.Elements, tagPatientName)),
		PlanLabel:   stringOf(find(ds.Elements, tagPlanLabel)),
	}

	beams := itemsOf(find(ds.Elements, tagIonBeamSeq))
	if beams == nil {
		return nil, fmt.Errorf("%w: no ion beam sequence", ErrMalformedPlan)
	}

	for i, item := range beams {
		beam, err := readBeam(item)
		if err != nil {
			return nil, fmt.Errorf("beam %d: %w", i+1, err)
		}
		if plan.MachineName == "" {
			plan.MachineName = beam.MachineName
		}
		if !r.IncludeSetup && isSetupBeam(beam) {
			continue
		}
		plan.Beams = append(plan.Beams, *beam)
	}
	return plan, nil
}

// isSetupBeam reports whether the beam only positions the patient.
func isSetupBeam(beam *schema.BeamRecord) bool {
	return beam.Description == "Site Setup" || beam.Name == "SETUP"
}

func readBeam(elems []*dicom.Element) (*schema.BeamRecord, error) {
	number, ok := intOf(find(elems, tagBeamNumber))
	if !ok {
		return nil, fmt.Errorf("%w: missing beam number", ErrMalformedPlan)
	}
	beam := &schema.BeamRecord{
		Number:      number,
		Name:        stringOf(find(elems, tagBeamName)),
		Description: stringOf(find(elems, tagBeamDescription)),
		MachineName: stringOf(find(elems, tagMachineName)),
	}

	beam.NumberOfBlocks, _ = intOf(find(elems, tagNumberOfBlocks))
	if beam.NumberOfBlocks > 0 {
		if blocks := itemsOf(find(elems, tagIonBlockSeq)); len(blocks) > 0 {
			data, err := floatsOf(find(blocks[0], tagBlockData))
			if err != nil {
				return nil, fmt.Errorf("block data: %w", err)
			}
			beam.BlockData = data
		}
	}

	if devices := itemsOf(find(elems, tagIonLimitingDeviceSeq)); len(devices) > 0 {
		bounds, err := floatsOf(find(devices[0], tagLeafBoundaries))
		if err != nil {
			return nil, fmt.Errorf("leaf boundaries: %w", err)
		}
		if len(bounds) > 0 {
			beam.HasMLC = true
			beam.LeafBoundaries = bounds
		}
	}

	points := itemsOf(find(elems, tagIonControlPointSeq))
	// Layers are start/end pairs; a trailing unpaired point is ignored.
	for k := 0; 2*k+1 < len(points); k++ {
		layer, err := readLayer(points[2*k], points[2*k+1], k, beam.HasMLC)
		if err != nil {
			return nil, fmt.Errorf("control point %d: %w", 2*k, err)
		}
		beam.Layers = append(beam.Layers, *layer)
	}
	return beam, nil
}

func readLayer(start, end []*dicom.Element, k int, hasMLC bool) (*schema.LayerRecord, error) {
	cp, ok := intOf(find(start, tagControlPointIndex))
	if !ok {
		cp = 2 * k
	}

	energy, ok, err := floatOf(find(start, tagNominalBeamEnergy))
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: missing nominal beam energy", ErrMalformedPlan)
	}
	now, _, err := floatOf(find(start, tagCumulativeMeterset))
	if err != nil {
		return nil, fmt.Errorf("cumulative meterset weight: %w", err)
	}
	next, _, err := floatOf(find(end, tagCumulativeMeterset))
	if err != nil {
		return nil, fmt.Errorf("cumulative meterset weight: %w", err)
	}

	layer := &schema.LayerRecord{
		Number:        k + 1,
		ControlPoint:  cp,
		Energy:        energy,
		CumWeightNow:  now,
		CumWeightNext: next,
		PositionMap:   bytesOf(find(start, tagPositionMap)),
		WeightMap:     bytesOf(find(start, tagWeightMap)),
		NumPositions:  stringOf(find(start, tagNumPositions)),
		TuneID:        stringOf(find(start, tagTuneID)),
	}

	if hasMLC {
		if devices := itemsOf(find(start, tagDevicePositionSeq)); len(devices) > 0 {
			leaves, err := floatsOf(find(devices[0], tagLeafJawPositions))
			if err != nil {
				return nil, fmt.Errorf("leaf positions: %w", err)
			}
			layer.MLCLeafPositions = leaves
		}
	}
	return layer, nil
}

// find returns the first element with tag t, or nil.
func find(elems []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, e := range elems {
		if e != nil && e.Tag == t {
			return e
		}
	}
	return nil
}

// itemsOf returns the item element lists of a sequence element.
func itemsOf(e *dicom.Element) [][]*dicom.Element {
	if e == nil || e.Value == nil {
		return nil
	}
	seq, ok := e.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	items := make([][]*dicom.Element, 0, len(seq))
	for _, item := range seq {
		elems, _ := item.GetValue().([]*dicom.Element)
		items = append(items, elems)
	}
	return items
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// stringOf returns the first value of a text element, also accepting raw bytes
// for private attributes read without a dictionary entry.
func stringOf(e *dicom.Element) string {
	if e == nil || e.Value == nil {
		return ""
	}
	switch v := e.Value.GetValue().(type) {
	case []string:
		if len(v) == 0 {
			return ""
		}
		return cleanText(v[0])
	case []byte:
		return cleanText(string(v))
	case []int:
		if len(v) == 0 {
			return ""
		}
		return strconv.Itoa(v[0])
	}
	return ""
}

func bytesOf(e *dicom.Element) []byte {
	if e == nil || e.Value == nil {
		return nil
	}
	if v, ok := e.Value.GetValue().([]byte); ok {
		return v
	}
	return nil
}

func intOf(e *dicom.Element) (int, bool) {
	if e == nil || e.Value == nil {
		return 0, false
	}
	switch v := e.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], true
		}
	case []string, []byte:
		n, err := strconv.Atoi(stringOf(e))
		return n, err == nil
	}
	return 0, false
}

// floatsOf decodes a multi-valued numeric element such as DS or FD.
func floatsOf(e *dicom.Element) ([]float64, error) {
	if e == nil || e.Value == nil {
		return nil, nil
	}
	switch v := e.Value.GetValue().(type) {
	case []float64:
		return v, nil
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out, nil
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			s = cleanText(s)
			if s == "" {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a number", ErrMalformedPlan, s)
			}
			out = append(out, f)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unexpected value type for %s", ErrMalformedPlan, e.Tag)
}

func floatOf(e *dicom.Element) (float64, bool, error) {
	vals, err := floatsOf(e)
	if err != nil || len(vals) == 0 {
		return 0, false, err
	}
	return vals[0], true, nil
}
