// Package types defines the identifiers shared by the synchronization core
// (package comm) and the operator layer: the structured synchronization Key
// and its Direction/Quantity components.
package types

import (
	"fmt"

	"github.com/gomlx/syncnorm/internal/utils"
)

// Direction distinguishes forward-pass rounds from backward-pass rounds of
// the same layer, so the two can never share a rendezvous point even when
// a fast device starts its backward pass while a slow one is still in the
// forward pass.
type Direction int

//go:generate go tool enumer -type=Direction -output=gen_direction_enumer.go types.go

const (
	Forward Direction = iota
	Backward
)

// Quantity names the statistic being globalized in one synchronization round.
//
// Each quantity gets an independent exchange buffer: the forward pass reduces
// Mean and Variance, the backward pass reduces GradSum (the per-channel sum
// of output gradients) and GradProd (the per-channel sum of gradient times
// centered input).
type Quantity int

//go:generate go tool enumer -type=Quantity -trimprefix=Quantity -output=gen_quantity_enumer.go types.go

const (
	QuantityMean Quantity = iota
	QuantityVariance
	QuantityGradSum
	QuantityGradProd
)

// Key identifies one synchronization group: all devices computing the same
// logical layer instance use an equal Key for a given pass and quantity, and
// must agree on the group size.
//
// The structured form guarantees forward/backward and mean/variance rounds
// of one layer never collide, and that no layer name can collide with
// another layer's rounds by accidental string concatenation.
type Key struct {
	// Layer is the caller-chosen identifier of the layer instance, e.g. the
	// block prefix in the model. It is normalized to letters, digits and
	// underscores in the canonical form.
	Layer string

	Direction Direction
	Quantity  Quantity
}

// String returns the canonical form of the key, used as the map key by the
// registries. Two Keys with layer names that normalize to the same identifier
// refer to the same group.
func (k Key) String() string {
	return fmt.Sprintf("%s.%s.%s", utils.NormalizeIdentifier(k.Layer), k.Direction, k.Quantity)
}
