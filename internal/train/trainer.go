// Package train runs the per-region training pipeline: feature
// construction, sequence windowing, LSTM training with early stopping and
// artifact publication.
package train

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"gonum.org/v1/gonum/mat"

	config "github.com/tigerroll/powercast/internal/config"
	"github.com/tigerroll/powercast/internal/dataset"
	"github.com/tigerroll/powercast/internal/domain/entity"
	"github.com/tigerroll/powercast/internal/feature"
	"github.com/tigerroll/powercast/internal/metrics"
	"github.com/tigerroll/powercast/internal/model"
	"github.com/tigerroll/powercast/internal/repository"
	"github.com/tigerroll/powercast/internal/support/exception"
	"github.com/tigerroll/powercast/internal/support/logger"
	"github.com/tigerroll/powercast/internal/timeseries"
)

// Algo is the algorithm tag stored on every model record.
const Algo = "LSTMSeq2Seq"

// Trainer trains one model per region and records the result.
type Trainer struct {
	series     repository.SeriesRepository
	models     repository.ModelRepository
	artifacts  *repository.ArtifactStore
	normalizer *timeseries.TimeNormalizer
	builder    *feature.Builder
	locations  map[string]string // region -> weather location its rows are keyed by
	cfg        config.TrainingConfig
	metrics    *metrics.Metrics
}

func NewTrainer(
	series repository.SeriesRepository,
	models repository.ModelRepository,
	artifacts *repository.ArtifactStore,
	normalizer *timeseries.TimeNormalizer,
	locations map[string]string,
	cfg config.TrainingConfig,
	m *metrics.Metrics,
) *Trainer {
	return &Trainer{
		series:     series,
		models:     models,
		artifacts:  artifacts,
		normalizer: normalizer,
		builder:    feature.NewBuilder(feature.DefaultConfig(), normalizer),
		locations:  locations,
		cfg:        cfg,
		metrics:    m,
	}
}

// Train runs the pipeline for every region. A failing region is logged and
// the rest continue; the run fails only when every region fails.
func (t *Trainer) Train(ctx context.Context, regions []string, from, to time.Time) error {
	var result *multierror.Error
	succeeded := 0
	for _, region := range regions {
		started := time.Now()
		rec, err := t.TrainRegion(ctx, region, from, to)
		t.metrics.ObservePipeline("train", region, time.Since(started), err)
		if err != nil {
			logger.Errorf("Training failed for region %s: %v", region, err)
			result = multierror.Append(result, fmt.Errorf("region %s: %w", region, err))
			continue
		}
		succeeded++
		logger.Infof("Trained model %s for region %s: test MAPE %.3f%%, best val loss %.6f, %d epochs",
			rec.ID, region, rec.TestMAPE, rec.BestValLoss, rec.EpochsRan)
	}
	if succeeded == 0 {
		return result.ErrorOrNil()
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Training finished with partial failures: %v", err)
	}
	return nil
}

// TrainRegion trains, evaluates and persists one region's model.
func (t *Trainer) TrainRegion(ctx context.Context, region string, from, to time.Time) (*entity.ModelRecord, error) {
	times, target, weather, holidays, err := t.assembleSeries(ctx, region, from, to)
	if err != nil {
		return nil, err
	}
	logger.Infof("Region %s: %d hourly observations between %s and %s",
		region, len(times), from.Format(time.RFC3339), to.Format(time.RFC3339))

	frame := t.builder.Build(times, target, weather, holidays)

	// The scaler is fitted on the full range before splitting, so the
	// statistics match what the persisted artifact reproduces at inference.
	var scaler dataset.StandardScaler
	scaler.Fit(target)
	scaled := scaler.Transform(target)

	windower := dataset.NewSequenceWindower(t.cfg.InputWindow, t.cfg.Horizon, t.cfg.MinSequences)
	seqs, err := windower.Window(times, frame.Matrix(), scaled)
	if err != nil {
		return nil, err
	}
	split := dataset.SplitSequences(seqs)
	logger.Infof("Region %s: %d sequences (train %d, val %d, test %d)",
		region, len(seqs), len(split.Train), len(split.Val), len(split.Test))

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	net := model.NewSeq2Seq(len(frame.Names()), t.cfg.HiddenSize, t.cfg.NumLayers, t.cfg.Horizon, t.cfg.Dropout, rng)

	bestValLoss, epochsRan, err := t.fit(ctx, net, split, rng, region)
	if err != nil {
		return nil, err
	}

	testMAPE := t.evaluateMAPE(net, split.Test, scaler)

	modelID := uuid.New().String()
	artifact := net.ToArtifact(t.cfg.InputWindow, frame.Names(), scaler)
	data, err := artifact.Marshal()
	if err != nil {
		return nil, err
	}
	key, err := t.artifacts.Put(ctx, region, modelID, data)
	if err != nil {
		return nil, err
	}

	hyper, err := json.Marshal(t.cfg)
	if err != nil {
		return nil, exception.NewPipelineError("train", "failed to encode hyperparameters", err, false, false)
	}
	rec := &entity.ModelRecord{
		ID:          modelID,
		Region:      region,
		Algo:        Algo,
		Hyperparams: string(hyper),
		TrainStart:  from,
		TrainEnd:    to,
		TestMAPE:    testMAPE,
		BestValLoss: bestValLoss,
		EpochsRan:   epochsRan,
		ArtifactKey: key,
		CreatedAt:   time.Now().UTC(),
	}
	if err := t.models.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// assembleSeries loads the stored hourly rows and aligns weather and
// holidays onto the load hour axis.
func (t *Trainer) assembleSeries(ctx context.Context, region string, from, to time.Time) (
	[]time.Time, []float64, map[string][]float64, *feature.HolidayIndex, error,
) {
	loads, err := t.series.LoadRange(ctx, region, from, to)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(loads) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%w: region %s between %s and %s",
			exception.ErrNoData, region, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	times := make([]time.Time, len(loads))
	target := make([]float64, len(loads))
	for i, row := range loads {
		times[i] = row.TsHour.UTC()
		target[i] = row.Load
	}

	location := WeatherLocation(t.locations, region)
	weatherRows, err := t.series.WeatherRange(ctx, location, from, to)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(weatherRows) == 0 {
		logger.Warnf("no weather rows for region %s (weather location %q); training on load features only", region, location)
	}
	weather := AlignWeather(times, weatherRows)

	// Pad the holiday range by two days on each side so pre and post flags at
	// the range edges see their neighbors.
	holidayRows, err := t.series.Holidays(ctx, from.AddDate(0, 0, -2), to.AddDate(0, 0, 2))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	dates := make([]time.Time, len(holidayRows))
	for i, h := range holidayRows {
		dates[i] = h.Date
	}
	return times, target, weather, feature.NewHolidayIndex(dates), nil
}

// WeatherLocation resolves the weather location a region's rows are stored
// under. Regions without a mapping fall back to the region name itself.
func WeatherLocation(locations map[string]string, region string) string {
	if loc, ok := locations[region]; ok && loc != "" {
		return loc
	}
	return region
}

// AlignWeather projects weather rows onto an hour axis. A column is present
// only when at least one row carries a value for it; missing hours are NaN.
func AlignWeather(times []time.Time, rows []entity.HourlyWeather) map[string][]float64 {
	index := make(map[time.Time]*entity.HourlyWeather, len(rows))
	for i := range rows {
		index[rows[i].TsHour.UTC()] = &rows[i]
	}

	columns := map[string]func(*entity.HourlyWeather) *float64{
		"temp":             func(w *entity.HourlyWeather) *float64 { return w.Temp },
		"dew":              func(w *entity.HourlyWeather) *float64 { return w.Dew },
		"humidity":         func(w *entity.HourlyWeather) *float64 { return w.Humidity },
		"windspeed":        func(w *entity.HourlyWeather) *float64 { return w.Windspeed },
		"precip":           func(w *entity.HourlyWeather) *float64 { return w.Precip },
		"solarradiation":   func(w *entity.HourlyWeather) *float64 { return w.Solarradiation },
		"uvindex":          func(w *entity.HourlyWeather) *float64 { return w.Uvindex },
		"sealevelpressure": func(w *entity.HourlyWeather) *float64 { return w.Sealevelpressure },
		"cloudcover":       func(w *entity.HourlyWeather) *float64 { return w.Cloudcover },
	}

	out := map[string][]float64{}
	for name, get := range columns {
		values := make([]float64, len(times))
		any := false
		for i, ts := range times {
			row, ok := index[ts]
			if ok {
				if v := get(row); v != nil {
					values[i] = *v
					any = true
					continue
				}
			}
			values[i] = math.NaN()
		}
		if any {
			out[name] = values
		}
	}
	return out
}

// fit runs the epoch loop with early stopping and restores the best
// weights before returning.
func (t *Trainer) fit(ctx context.Context, net *model.Seq2Seq, split dataset.Split, rng *rand.Rand, region string) (float64, int, error) {
	opt := model.NewAdam(t.cfg.LearningRate)
	bestValLoss := math.Inf(1)
	var bestWeights map[string][]float64
	patienceLeft := t.cfg.Patience
	epochsRan := 0

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		trainLoss := t.runEpoch(net, opt, split.Train, rng)
		valLoss := t.evalLoss(net, split.Val)
		epochsRan = epoch
		t.metrics.ObserveTrainEpochs(region, 1)
		logger.Infof("Region %s epoch %d/%d: train loss %.6f, val loss %.6f",
			region, epoch, t.cfg.Epochs, trainLoss, valLoss)

		if valLoss < bestValLoss-t.cfg.MinDelta {
			bestValLoss = valLoss
			bestWeights = net.Snapshot()
			patienceLeft = t.cfg.Patience
			continue
		}
		patienceLeft--
		if patienceLeft <= 0 {
			logger.Infof("Region %s: early stop at epoch %d, best val loss %.6f", region, epoch, bestValLoss)
			break
		}
	}

	if bestWeights != nil {
		if err := net.Restore(bestWeights); err != nil {
			return 0, 0, err
		}
	}
	return bestValLoss, epochsRan, nil
}

func (t *Trainer) runEpoch(net *model.Seq2Seq, opt *model.Adam, train []dataset.Sequence, rng *rand.Rand) float64 {
	net.SetTraining(true)
	defer net.SetTraining(false)

	order := rng.Perm(len(train))
	var total float64
	var batches int
	for start := 0; start < len(order); start += t.cfg.BatchSize {
		end := start + t.cfg.BatchSize
		if end > len(order) {
			end = len(order)
		}
		picked := make([]dataset.Sequence, end-start)
		for i, idx := range order[start:end] {
			picked[i] = train[idx]
		}
		batch := model.NewBatch(picked)

		fc := net.Forward(batch, t.cfg.TeacherForcing)
		loss, dPred := mseLoss(fc.Preds(), batch.Truth)
		net.ZeroGrad()
		net.Backward(fc, dPred)
		opt.Step(net.Params())

		total += loss
		batches++
	}
	if batches == 0 {
		return 0
	}
	return total / float64(batches)
}

// evalLoss computes the autoregressive MSE over a split.
func (t *Trainer) evalLoss(net *model.Seq2Seq, seqs []dataset.Sequence) float64 {
	if len(seqs) == 0 {
		return 0
	}
	net.SetTraining(false)
	var total float64
	var batches int
	for start := 0; start < len(seqs); start += t.cfg.BatchSize {
		end := start + t.cfg.BatchSize
		if end > len(seqs) {
			end = len(seqs)
		}
		batch := model.NewBatch(seqs[start:end])
		fc := net.Forward(batch, 0)
		loss, _ := mseLoss(fc.Preds(), batch.Truth)
		total += loss
		batches++
	}
	return total / float64(batches)
}

// evaluateMAPE scores the restored model on the test split in original units.
func (t *Trainer) evaluateMAPE(net *model.Seq2Seq, test []dataset.Sequence, scaler dataset.StandardScaler) float64 {
	if len(test) == 0 {
		return 0
	}
	net.SetTraining(false)
	var sum float64
	var n int
	for start := 0; start < len(test); start += t.cfg.BatchSize {
		end := start + t.cfg.BatchSize
		if end > len(test) {
			end = len(test)
		}
		batch := model.NewBatch(test[start:end])
		fc := net.Forward(batch, 0)
		preds := fc.Preds()
		rows, cols := preds.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				y := scaler.InverseValue(batch.Truth.At(r, c))
				yHat := scaler.InverseValue(preds.At(r, c))
				sum += math.Abs(y-yHat) / math.Max(math.Abs(y), 1e-6)
				n++
			}
		}
	}
	return sum / float64(n) * 100
}

func mseLoss(preds, truth *mat.Dense) (float64, *mat.Dense) {
	b, h := preds.Dims()
	grad := mat.NewDense(b, h, nil)
	var sum float64
	for r := 0; r < b; r++ {
		for c := 0; c < h; c++ {
			d := preds.At(r, c) - truth.At(r, c)
			sum += d * d
			grad.Set(r, c, 2*d/float64(b*h))
		}
	}
	return sum / float64(b*h), grad
}
