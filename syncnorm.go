// Package syncnorm implements synchronized batch normalization for
// data-parallel training inside one process: every device worker holds a
// disjoint shard of the batch, and the per-channel mean/variance (and, in the
// backward pass, the gradient sums) are globalized across all devices before
// the normalization formula is applied.
//
// Among its pieces:
//
//   - comm: the cross-device synchronization core — keyed rendezvous,
//     rank assignment, and exactly-once aggregation (the hard part).
//   - types: structured synchronization keys (layer × direction × quantity).
//   - SyncBatchNorm (this package): the per-device operator that computes
//     local statistics, globalizes them through a comm.Communicator, and
//     applies the batch-norm arithmetic.
//
// One Communicator is shared by all device workers of a training job; one
// SyncBatchNorm instance exists per device per layer, all configured with the
// same Config.Key and Config.NumDevices.
package syncnorm
