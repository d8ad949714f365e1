package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/protonlab/scantime/core/codec"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/internal/outwriter"
	"github.com/protonlab/scantime/internal/ptnlog"
	"github.com/protonlab/scantime/internal/rtplan"
	"github.com/protonlab/scantime/schema"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// mmPerCm converts plan positions to the unit of delivery logs.
const mmPerCm = 10

// CompareLayer measures how far the logged beam path strays from the planned spots.
//
// Both paths are put on a normalized cumulative MU axis running from 0 to 1. The
// planned position is interpolated at every logged sample and the difference is
// planned minus logged, in mm.
func CompareLayer(layer *schema.Layer, log *ptnlog.Log) (schema.LayerDeviation, error) {
	dev := schema.LayerDeviation{
		Layer:        layer.Number,
		ControlPoint: layer.ControlPoint,
		Energy:       layer.Energy,
		LogFile:      log.Path,
		PlanSpots:    len(layer.Segments),
		LogSamples:   len(log.Samples),
		DeliveredMU:  log.TotalMU(),
	}
	if len(layer.Segments) == 0 || len(log.Samples) == 0 {
		return dev, fmt.Errorf("%w: %d planned spots, %d logged samples", ErrNoDeliveryData, dev.PlanSpots, dev.LogSamples)
	}

	n := len(layer.Segments)
	weights := make([]float64, n)
	planX := make([]float64, n)
	planY := make([]float64, n)
	for i, seg := range layer.Segments {
		weights[i] = seg.Weight
		planX[i] = seg.Position.X * mmPerCm
		planY[i] = seg.Position.Y * mmPerCm
	}
	planMU := normalizeToLast(floats.CumSum(make([]float64, n), weights))
	logMU := normalizeToLast(append([]float64(nil), log.CumulativeMU...))

	logX, logY := log.Positions()
	diffX := floats.SubTo(make([]float64, len(logX)), interpolate(logMU, planMU, planX), logX)
	diffY := floats.SubTo(make([]float64, len(logY)), interpolate(logMU, planMU, planY), logY)

	dev.MeanDiffX, dev.StdDiffX = stat.PopMeanStdDev(diffX, nil)
	dev.MeanDiffY, dev.StdDiffY = stat.PopMeanStdDev(diffY, nil)
	dev.MaxAbsDiffX = floats.Norm(diffX, math.Inf(1))
	dev.MaxAbsDiffY = floats.Norm(diffY, math.Inf(1))
	return dev, nil
}

// normalizeToLast scales a running sum in place so it ends at 1.
// A sum ending at 0 is left as is.
func normalizeToLast(s []float64) []float64 {
	if last := s[len(s)-1]; last != 0 {
		floats.Scale(1/last, s)
	}
	return s
}

// interpolate evaluates the piecewise linear function through (xp, fp) at every x.
// xp must be non-decreasing. Points outside xp take the nearest end value.
func interpolate(x, xp, fp []float64) []float64 {
	out := make([]float64, len(x))
	last := len(xp) - 1
	for i, v := range x {
		switch {
		case v <= xp[0]:
			out[i] = fp[0]
		case v >= xp[last]:
			out[i] = fp[last]
		default:
			// xp[j-1] < v <= xp[j]
			j := sort.SearchFloat64s(xp, v)
			if xp[j] == v {
				out[i] = fp[j]
				continue
			}
			t := (v - xp[j-1]) / (xp[j] - xp[j-1])
			out[i] = fp[j-1] + t*(fp[j]-fp[j-1])
		}
	}
	return out
}

// layerRef locates a built layer inside its port.
type layerRef struct {
	port  *schema.Port
	layer *schema.Layer
}

// CheckPlan compares the layers of a plan, in delivery order, with delivery logs
// given in the same order. A log that cannot be read or compared is reported on
// its layer and does not stop the others.
func CheckPlan(ctx context.Context, cfg *contract.Config, src contract.PlanSource, logPaths []string) (*schema.CheckReport, error) {
	if cfg.PlanPath == "" {
		return nil, errors.New("a plan file is required")
	}
	if len(logPaths) == 0 {
		return nil, errors.New("at least one delivery log is required")
	}

	record, err := src.ReadPlan(ctx, cfg.PlanPath)
	if err != nil {
		return nil, err
	}
	resolved, err := cfg.ResolveMachine(record.MachineName)
	if err != nil {
		return nil, err
	}
	cal, err := resolved.CalibrationFor(record.MachineName)
	if err != nil {
		return nil, err
	}
	decoder, err := codec.NewDecoder(resolved.SpotEncoding, codec.Options{PositionScale: resolved.PositionScale})
	if err != nil {
		return nil, err
	}
	ports, err := buildPorts(resolved, record, decoder)
	if err != nil {
		return nil, err
	}

	var layers []layerRef
	for _, port := range ports {
		for _, layer := range port.Layers {
			layers = append(layers, layerRef{port, layer})
		}
	}
	paired := min(len(layers), len(logPaths))
	if paired == 0 {
		return nil, errors.New("the plan has no layer to check")
	}

	report := &schema.CheckReport{
		PlanPath:        record.SourcePath,
		PatientID:       record.PatientID,
		PatientName:     record.PatientName,
		MachineName:     record.MachineName,
		Calibration:     cal,
		Layers:          make([]schema.LayerDeviation, paired),
		UnusedLogs:      logPaths[paired:],
		UncheckedLayers: len(layers) - paired,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(resolved.Workers, 1))
	for i := range paired {
		ref, path := layers[i], logPaths[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dev, err := checkLayer(ref, path, cal)
			if err != nil {
				dev.Error = err.Error()
			}
			report.Layers[i] = dev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func checkLayer(ref layerRef, path string, cal schema.LogCalibration) (schema.LayerDeviation, error) {
	dev := schema.LayerDeviation{
		Layer:        ref.layer.Number,
		ControlPoint: ref.layer.ControlPoint,
		Energy:       ref.layer.Energy,
		LogFile:      path,
		PlanSpots:    len(ref.layer.Segments),
	}
	log, err := ptnlog.ReadFile(path, cal)
	if err == nil {
		dev, err = CompareLayer(ref.layer, log)
	}
	dev.BeamNumber = ref.port.BeamNumber
	dev.BeamName = ref.port.BeamName
	return dev, err
}

// ExecuteCheck compares the plan with its delivery logs and prints the deviations.
// It serves as the main entry point for the 'check' command.
func ExecuteCheck(ctx context.Context, cfg *contract.Config, logPaths []string) error {
	start := time.Now()
	report, err := CheckPlan(ctx, cfg, rtplan.NewReader(cfg.IncludeSetup), logPaths)
	if err != nil {
		return err
	}
	return outwriter.WriteCheck(report, cfg, time.Since(start))
}

// GetCheckResults compares the plan with its delivery logs without printing.
// It serves as the entry point for MCP tools.
func GetCheckResults(ctx context.Context, cfg *contract.Config, logPaths []string) (*schema.CheckReport, error) {
	return CheckPlan(ctx, cfg, rtplan.NewReader(cfg.IncludeSetup), logPaths)
}
