package trainer

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/born-ml/nfnet/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedHarness replays fixed accuracies.
type scriptedHarness struct {
	train, validation []float64
	trained           []int
	failAt            int
	epoch             int
}

func (h *scriptedHarness) TrainEpoch(epoch int) error {
	if epoch == h.failAt {
		return ErrNonFiniteLoss
	}
	h.epoch = epoch
	h.trained = append(h.trained, epoch)
	return nil
}

func (h *scriptedHarness) TrainAccuracy() (float64, error) {
	return h.train[h.epoch-1], nil
}

func (h *scriptedHarness) ValidationAccuracy() (float64, error) {
	return h.validation[h.epoch-1], nil
}

type recordingCheckpointer struct {
	epochs []int
	accs   []float64
	err    error
}

func (c *recordingCheckpointer) Save(epoch int, acc float64) error {
	if c.err != nil {
		return c.err
	}
	c.epochs = append(c.epochs, epoch)
	c.accs = append(c.accs, acc)
	return nil
}

type recordingScheduler struct {
	epochs []int
}

func (s *recordingScheduler) Step(epoch int) error {
	if epoch != len(s.epochs)+1 {
		return errors.New("out of order")
	}
	s.epochs = append(s.epochs, epoch)
	return nil
}

// fakeClock advances by step on every call.
func fakeClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestBestTracker(t *testing.T) {
	var tracker BestTracker
	var improved []bool
	var history []float64
	for _, acc := range []float64{50, 40, 60, 60, 70} {
		improved = append(improved, tracker.Observe(acc))
		history = append(history, tracker.Best())
	}
	assert.Equal(t, []bool{true, false, true, false, true}, improved)
	assert.Equal(t, []float64{50, 50, 60, 60, 70}, history)
}

func TestBestTrackerIgnoresZero(t *testing.T) {
	var tracker BestTracker
	assert.False(t, tracker.Observe(0), "initial best is zero and must be strictly exceeded")
}

func TestControllerCheckpointsOnImprovement(t *testing.T) {
	harness := &scriptedHarness{
		train:      []float64{45, 55, 65, 70, 80},
		validation: []float64{50, 40, 60, 60, 70},
	}
	ckpt := &recordingCheckpointer{}
	sched := &recordingScheduler{}
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "F0_records.npy")

	c := &Controller{
		Harness:     harness,
		Scheduler:   sched,
		Checkpoints: ckpt,
		Epochs:      5,
		RecordsPath: path,
		Out:         &out,
		Now:         fakeClock(2 * time.Second),
	}
	result, err := c.Run()
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 5}, ckpt.epochs)
	assert.Equal(t, []float64{50, 60, 70}, ckpt.accs)
	assert.Equal(t, []int{1, 3, 5}, result.CheckpointEpochs)
	assert.Equal(t, []float64{50, 50, 60, 60, 70}, result.BestHistory)
	assert.InDelta(t, 70, result.Best(), 1e-12)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, sched.epochs)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, harness.trained)

	require.Len(t, result.Records, 5)
	for i, r := range result.Records {
		assert.Equal(t, 2*time.Second, r.TrainingTime)
		assert.Equal(t, harness.train[i], r.TrainAccuracy)
		assert.Equal(t, harness.validation[i], r.ValidationAccuracy)
	}

	saved, err := metrics.Load(path)
	require.NoError(t, err)
	assert.Equal(t, result.Records, saved)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Epoch[1/5], training accuracy: 45, validation accuracy: 50, training time: 2", lines[0])
	assert.True(t, strings.HasPrefix(lines[4], "Epoch[5/5], "))
}

func TestControllerTwoEpochRun(t *testing.T) {
	harness := &scriptedHarness{
		train:      []float64{30, 35.5},
		validation: []float64{60, 55},
	}
	ckpt := &recordingCheckpointer{}
	path := filepath.Join(t.TempDir(), "F2_records.npy")

	result, err := (&Controller{
		Harness:     harness,
		Checkpoints: ckpt,
		Epochs:      2,
		RecordsPath: path,
		Now:         fakeClock(time.Second),
	}).Run()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ckpt.epochs, "exactly one checkpoint write")

	saved, err := metrics.Load(path)
	require.NoError(t, err)
	assert.Equal(t, metrics.Records{
		{TrainingTime: time.Second, TrainAccuracy: 30, ValidationAccuracy: 60},
		{TrainingTime: time.Second, TrainAccuracy: 35.5, ValidationAccuracy: 55},
	}, saved)
	assert.Equal(t, saved, result.Records)
}

func TestControllerStopsOnTrainingError(t *testing.T) {
	harness := &scriptedHarness{
		train:      []float64{10, 20, 30},
		validation: []float64{10, 20, 30},
		failAt:     2,
	}
	ckpt := &recordingCheckpointer{}
	path := filepath.Join(t.TempDir(), "F0_records.npy")

	_, err := (&Controller{Harness: harness, Checkpoints: ckpt, Epochs: 3, RecordsPath: path}).Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonFiniteLoss)
	assert.Equal(t, []int{1}, ckpt.epochs, "earlier checkpoint is kept")
	assert.NoFileExists(t, path, "no metrics file on abort")
}

func TestControllerCheckpointError(t *testing.T) {
	harness := &scriptedHarness{train: []float64{1}, validation: []float64{1}}
	boom := errors.New("disk full")

	_, err := (&Controller{Harness: harness, Checkpoints: &recordingCheckpointer{err: boom}, Epochs: 1}).Run()
	assert.ErrorIs(t, err, boom)
}

func TestControllerSchedulerError(t *testing.T) {
	harness := &scriptedHarness{train: []float64{1, 2}, validation: []float64{1, 2}}
	sched := &recordingScheduler{epochs: []int{1}} // already one step ahead

	_, err := (&Controller{Harness: harness, Scheduler: sched, Checkpoints: &recordingCheckpointer{}, Epochs: 2}).Run()
	assert.ErrorContains(t, err, "out of order")
}

func TestControllerRejectsBadSetup(t *testing.T) {
	_, err := (&Controller{Checkpoints: &recordingCheckpointer{}, Epochs: 1}).Run()
	assert.Error(t, err)

	_, err = (&Controller{Harness: &scriptedHarness{}, Checkpoints: &recordingCheckpointer{}}).Run()
	assert.Error(t, err)
}

func TestCountCorrect(t *testing.T) {
	logits := []float32{
		0.1, 0.9, 0.0,
		2.0, 1.0, 0.0,
		0.5, 0.5, 0.1, // tie resolves to class 0
	}
	assert.Equal(t, 2, countCorrect(logits, []int32{1, 2, 0}, 3))
	assert.Equal(t, 0, countCorrect(logits, []int32{0, 1, 1}, 3))
	assert.Equal(t, 3, countCorrect(logits, []int32{1, 0, 0}, 3))
	assert.Panics(t, func() { countCorrect(logits, []int32{1}, 3) })
}
