package trainer

import (
	"fmt"

	"github.com/born-ml/nfnet/internal/cifar"
)

// Evaluate returns the percentage of examples in loader whose highest logit
// matches the label. The model is put in eval mode and the tape stops
// recording for the duration; the recording state is restored afterwards.
// Parameters are never modified.
func Evaluate[B Backend](model Classifier[B], loader *cifar.Loader[B], backend B) (float64, error) {
	model.Eval()

	tape := backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	correct, total := 0, 0
	it := loader.Iter()
	for it.Next() {
		batch := it.Batch()
		logits := model.Forward(batch.Images)
		correct += countCorrect(logits.Data(), batch.Labels.Data(), logits.Shape()[1])
		total += batch.Size
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, ErrEmptyDataset
	}
	return 100 * float64(correct) / float64(total), nil
}

// countCorrect counts rows of logits [n, classes] whose argmax equals the
// label. Ties resolve to the lowest index.
func countCorrect(logits []float32, labels []int32, classes int) int {
	if len(logits) != len(labels)*classes {
		panic(fmt.Sprintf("trainer: %d logits for %d labels of %d classes", len(logits), len(labels), classes))
	}
	correct := 0
	for i, label := range labels {
		row := logits[i*classes : (i+1)*classes]
		best := 0
		for j := 1; j < classes; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		if int32(best) == label {
			correct++
		}
	}
	return correct
}
