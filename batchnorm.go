package syncnorm

import (
	"math"

	"github.com/gomlx/syncnorm/comm"
	"github.com/gomlx/syncnorm/types"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas32"
)

// Config holds the parameters of one synchronized batch-norm layer. All
// devices of the layer must use an equal Key and NumDevices.
type Config struct {
	// Key identifies the layer instance across devices; typically the
	// layer's block prefix in the model. Required.
	Key string

	// NumDevices is the number of devices sharding the batch. Fixed for the
	// lifetime of the layer.
	NumDevices int

	// Eps prevents division by zero in the normalization. DefaultConfig
	// sets 1e-3.
	Eps float32

	// Momentum of the moving mean/variance update. DefaultConfig sets 0.9.
	Momentum float32

	// FixGamma treats the scale parameter as a constant 1 in the forward
	// pass and zeroes its gradient.
	FixGamma bool

	// UseGlobalStats normalizes with the moving statistics even in
	// training, turning the layer into a pure scale-shift operator with no
	// cross-device synchronization.
	UseGlobalStats bool
}

// DefaultConfig returns the Config for the given key and device count with
// the usual defaults: Eps 1e-3, Momentum 0.9, FixGamma true.
func DefaultConfig(key string, numDevices int) Config {
	return Config{
		Key:        key,
		NumDevices: numDevices,
		Eps:        1e-3,
		Momentum:   0.9,
		FixGamma:   true,
	}
}

// SyncBatchNorm is one device's instance of a synchronized batch-norm layer.
// Instances sharing a Config.Key rendezvous through the Communicator to
// compute global statistics; each instance keeps its own copy of the moving
// statistics (the updates are identical on every device, since they are
// derived from the shared aggregates).
//
// An instance belongs to a single device worker and is not safe for
// concurrent use by multiple goroutines.
type SyncBatchNorm struct {
	cfg  Config
	comm *comm.Communicator

	// channels is bound by the first Forward call; 0 until then.
	channels   int
	movingMean []float32
	movingVar  []float32
}

// New creates a device-local instance of the layer. The same Communicator
// must be shared by all devices of the training job.
func New(communicator *comm.Communicator, cfg Config) (*SyncBatchNorm, error) {
	if communicator == nil {
		return nil, errors.New("communicator must not be nil")
	}
	if cfg.Key == "" {
		return nil, errors.New("config requires a non-empty Key")
	}
	if cfg.NumDevices < 1 {
		return nil, errors.Errorf("config requires NumDevices >= 1, got %d", cfg.NumDevices)
	}
	if cfg.Eps <= 0 {
		return nil, errors.Errorf("config requires Eps > 0, got %g (see DefaultConfig)", cfg.Eps)
	}
	if cfg.Momentum < 0 || cfg.Momentum > 1 {
		return nil, errors.Errorf("config requires Momentum in [0, 1], got %g", cfg.Momentum)
	}
	return &SyncBatchNorm{cfg: cfg, comm: communicator}, nil
}

// ForwardResult carries the normalized output and the global statistics the
// backward pass needs.
type ForwardResult struct {
	Output *Tensor

	// Mean and Variance are the per-channel statistics aggregated across
	// all devices. Only set in training mode without UseGlobalStats.
	Mean, Variance []float32
}

// Gradients is the result of the backward pass.
type Gradients struct {
	GradInput *Tensor

	// GradGamma and GradBeta are this device's local per-channel parameter
	// gradients; summing them across devices is left to the host
	// framework's parameter allreduce.
	GradGamma, GradBeta []float32
}

// bindChannels fixes the layer's channel count on first use and allocates
// the moving statistics (mean zero, variance one).
func (bn *SyncBatchNorm) bindChannels(channels int) error {
	if bn.channels == 0 {
		bn.channels = channels
		bn.movingMean = make([]float32, channels)
		bn.movingVar = make([]float32, channels)
		for i := range bn.movingVar {
			bn.movingVar[i] = 1
		}
		return nil
	}
	if bn.channels != channels {
		return errors.Errorf("layer %q is bound to %d channels, got input with %d", bn.cfg.Key, bn.channels, channels)
	}
	return nil
}

func (bn *SyncBatchNorm) checkChannelVector(name string, v []float32) error {
	if len(v) != bn.channels {
		return errors.Errorf("%s has length %d, layer %q has %d channels", name, len(v), bn.cfg.Key, bn.channels)
	}
	return nil
}

// Forward normalizes the device's local shard x. In training mode (unless
// UseGlobalStats is set) it synchronizes with every other device of the
// layer: the call blocks until all NumDevices workers have entered their
// Forward for this layer, and every device normalizes with the same global
// mean and variance. In inference mode it is a local scale-shift using the
// moving statistics.
//
// gamma and beta are the per-channel scale and shift parameters; with
// FixGamma the scale is treated as 1 regardless of gamma's values.
func (bn *SyncBatchNorm) Forward(x *Tensor, gamma, beta []float32, training bool) (*ForwardResult, error) {
	if err := bn.bindChannels(x.Channels()); err != nil {
		return nil, err
	}
	if err := bn.checkChannelVector("gamma", gamma); err != nil {
		return nil, err
	}
	if err := bn.checkChannelVector("beta", beta); err != nil {
		return nil, err
	}

	if !training || bn.cfg.UseGlobalStats {
		return bn.forwardFrozen(x, gamma, beta)
	}

	channels := bn.channels
	scale := 1 / float32(x.Batch()*x.spatial())

	// Local E[x] and E[x²] per channel.
	mean := make([]float32, channels)
	sqMean := make([]float32, channels)
	x.forEachChannelBlock(func(c int, block []float32) {
		for _, v := range block {
			mean[c] += v
			sqMean[c] += v * v
		}
	})
	for c := 0; c < channels; c++ {
		mean[c] *= scale
		sqMean[c] *= scale
	}

	// Globalize both statistics; each quantity has its own rendezvous key.
	mean, err := bn.comm.Reduce(bn.key(types.Forward, types.QuantityMean), bn.cfg.NumDevices, mean)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q: syncing mean", bn.cfg.Key)
	}
	sqMean, err = bn.comm.Reduce(bn.key(types.Forward, types.QuantityVariance), bn.cfg.NumDevices, sqMean)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q: syncing variance", bn.cfg.Key)
	}

	// Var(x) = E[x²] - E[x]².
	variance := make([]float32, channels)
	for c := 0; c < channels; c++ {
		variance[c] = sqMean[c] - mean[c]*mean[c]
	}

	slope := bn.slope(gamma)
	invStd := make([]float32, channels)
	for c := 0; c < channels; c++ {
		invStd[c] = 1 / float32(math.Sqrt(float64(variance[c]+bn.cfg.Eps)))
	}

	out := newLike(x)
	outData := out.data
	i := 0
	x.forEachChannelBlock(func(c int, block []float32) {
		for _, v := range block {
			outData[i] = slope[c]*(v-mean[c])*invStd[c] + beta[c]
			i++
		}
	})

	return &ForwardResult{Output: out, Mean: mean, Variance: variance}, nil
}

// forwardFrozen is the inference (or UseGlobalStats) path: a pure per-channel
// scale-shift with the moving statistics, no synchronization.
func (bn *SyncBatchNorm) forwardFrozen(x *Tensor, gamma, beta []float32) (*ForwardResult, error) {
	channels := bn.channels
	slope := bn.slope(gamma)
	mult := make([]float32, channels)
	bias := make([]float32, channels)
	for c := 0; c < channels; c++ {
		invStd := 1 / float32(math.Sqrt(float64(bn.movingVar[c]+bn.cfg.Eps)))
		mult[c] = slope[c] * invStd
		bias[c] = beta[c] - slope[c]*bn.movingMean[c]*invStd
	}

	out := newLike(x)
	outData := out.data
	i := 0
	x.forEachChannelBlock(func(c int, block []float32) {
		for _, v := range block {
			outData[i] = mult[c]*v + bias[c]
			i++
		}
	})
	return &ForwardResult{Output: out}, nil
}

// Backward computes the gradients of the device's local shard. mean and
// variance must be the global statistics returned by the matching Forward
// call. Like Forward, it blocks until every device of the layer has entered
// its Backward, and also folds this step's statistics into the moving
// mean/variance.
//
// With UseGlobalStats the moving statistics are frozen and no
// synchronization happens; mean and variance are ignored and may be nil.
func (bn *SyncBatchNorm) Backward(gradOut, x *Tensor, gamma, mean, variance []float32) (*Gradients, error) {
	if bn.channels == 0 {
		return nil, errors.Errorf("layer %q: Backward before any Forward", bn.cfg.Key)
	}
	if !sameShape(gradOut, x) {
		return nil, errors.Errorf("gradOut dimensions %v disagree with input dimensions %v", gradOut.dims, x.dims)
	}
	if x.Channels() != bn.channels {
		return nil, errors.Errorf("layer %q is bound to %d channels, got input with %d", bn.cfg.Key, bn.channels, x.Channels())
	}
	if err := bn.checkChannelVector("gamma", gamma); err != nil {
		return nil, err
	}
	if bn.cfg.UseGlobalStats {
		return bn.backwardFrozen(gradOut, x, gamma)
	}
	if err := bn.checkChannelVector("mean", mean); err != nil {
		return nil, err
	}
	if err := bn.checkChannelVector("variance", variance); err != nil {
		return nil, err
	}

	channels := bn.channels
	// Fold this step's global statistics into the moving averages. Every
	// device applies the identical update.
	momentum := bn.cfg.Momentum
	blas32.Scal(momentum, blas32.Vector{N: channels, Inc: 1, Data: bn.movingMean})
	blas32.Axpy(1-momentum, blas32.Vector{N: channels, Inc: 1, Data: mean},
		blas32.Vector{N: channels, Inc: 1, Data: bn.movingMean})
	blas32.Scal(momentum, blas32.Vector{N: channels, Inc: 1, Data: bn.movingVar})
	blas32.Axpy(1-momentum, blas32.Vector{N: channels, Inc: 1, Data: variance},
		blas32.Vector{N: channels, Inc: 1, Data: bn.movingVar})

	// Local Σgrad and Σgrad·(x−μ) per channel.
	sumGrad := make([]float32, channels)
	sumProd := make([]float32, channels)
	gradData := gradOut.data
	i := 0
	x.forEachChannelBlock(func(c int, block []float32) {
		for _, v := range block {
			g := gradData[i]
			sumGrad[c] += g
			sumProd[c] += g * (v - mean[c])
			i++
		}
	})

	sumGrad, err := bn.comm.Reduce(bn.key(types.Backward, types.QuantityGradSum), bn.cfg.NumDevices, sumGrad)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q: syncing gradient sum", bn.cfg.Key)
	}
	sumProd, err = bn.comm.Reduce(bn.key(types.Backward, types.QuantityGradProd), bn.cfg.NumDevices, sumProd)
	if err != nil {
		return nil, errors.WithMessagef(err, "layer %q: syncing gradient product", bn.cfg.Key)
	}

	slope := bn.slope(gamma)
	invStd := make([]float32, channels)
	gVar := make([]float32, channels)
	gMean := make([]float32, channels)
	for c := 0; c < channels; c++ {
		varEps := variance[c] + bn.cfg.Eps
		invStd[c] = 1 / float32(math.Sqrt(float64(varEps)))
		gVar[c] = -0.5 * sumProd[c] * slope[c] * float32(math.Pow(float64(varEps), -1.5))
		// Σ(x_i − μ) = 0, so the second term of dl/dμ vanishes.
		gMean[c] = -sumGrad[c] * slope[c] * invStd[c]
	}

	scale := 1 / float32(x.Batch()*x.spatial())
	gradIn := newLike(x)
	gradInData := gradIn.data
	gradGamma := make([]float32, channels)
	gradBeta := make([]float32, channels)
	i = 0
	x.forEachChannelBlock(func(c int, block []float32) {
		for _, v := range block {
			g := gradData[i]
			centered := v - mean[c]
			gradInData[i] = g*slope[c]*invStd[c] + gVar[c]*scale*2*centered + gMean[c]*scale
			gradGamma[c] += g * centered * invStd[c]
			gradBeta[c] += g
			i++
		}
	})
	if bn.cfg.FixGamma {
		clear(gradGamma)
	}

	return &Gradients{GradInput: gradIn, GradGamma: gradGamma, GradBeta: gradBeta}, nil
}

// backwardFrozen differentiates the scale-shift path through the frozen
// moving statistics.
func (bn *SyncBatchNorm) backwardFrozen(gradOut, x *Tensor, gamma []float32) (*Gradients, error) {
	channels := bn.channels
	slope := bn.slope(gamma)
	invStd := make([]float32, channels)
	for c := 0; c < channels; c++ {
		invStd[c] = 1 / float32(math.Sqrt(float64(bn.movingVar[c]+bn.cfg.Eps)))
	}

	gradIn := newLike(x)
	gradInData := gradIn.data
	gradGamma := make([]float32, channels)
	gradBeta := make([]float32, channels)
	gradData := gradOut.data
	i := 0
	x.forEachChannelBlock(func(c int, block []float32) {
		for _, v := range block {
			g := gradData[i]
			gradInData[i] = g * slope[c] * invStd[c]
			gradGamma[c] += g * (v - bn.movingMean[c]) * invStd[c]
			gradBeta[c] += g
			i++
		}
	})
	if bn.cfg.FixGamma {
		clear(gradGamma)
	}
	return &Gradients{GradInput: gradIn, GradGamma: gradGamma, GradBeta: gradBeta}, nil
}

// slope returns the effective per-channel scale: gamma, or all ones when
// FixGamma is set.
func (bn *SyncBatchNorm) slope(gamma []float32) []float32 {
	if !bn.cfg.FixGamma {
		return gamma
	}
	ones := make([]float32, bn.channels)
	for i := range ones {
		ones[i] = 1
	}
	return ones
}

// MovingMean returns a copy of the per-channel moving mean.
func (bn *SyncBatchNorm) MovingMean() []float32 {
	out := make([]float32, len(bn.movingMean))
	copy(out, bn.movingMean)
	return out
}

// MovingVariance returns a copy of the per-channel moving variance.
func (bn *SyncBatchNorm) MovingVariance() []float32 {
	out := make([]float32, len(bn.movingVar))
	copy(out, bn.movingVar)
	return out
}

// SetMovingStats overwrites the moving statistics, e.g. with values restored
// from a checkpoint. It also binds the layer's channel count if no Forward
// has run yet.
func (bn *SyncBatchNorm) SetMovingStats(mean, variance []float32) error {
	if len(mean) != len(variance) {
		return errors.Errorf("mean has length %d, variance %d", len(mean), len(variance))
	}
	if err := bn.bindChannels(len(mean)); err != nil {
		return err
	}
	copy(bn.movingMean, mean)
	copy(bn.movingVar, variance)
	return nil
}

func (bn *SyncBatchNorm) key(direction types.Direction, quantity types.Quantity) types.Key {
	return types.Key{Layer: bn.cfg.Key, Direction: direction, Quantity: quantity}
}
