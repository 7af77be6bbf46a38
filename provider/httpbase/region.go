package httpbase

import (
	"math/rand/v2"

	"github.com/casualjim/hoot/provider"
)

// Picker returns a uniform random index in [0, n).
type Picker func(n int) int

// PickRegion picks a uniformly random region among the ones call has not excluded.
func PickRegion(call *provider.Call, regions []string, pick Picker) (string, error) {
	available := regions
	if call != nil {
		available = call.AvailableRegions(regions)
	}
	if len(available) == 0 {
		return "", provider.NewError(provider.KindProviderUnavailable, "no available regions left")
	}
	if pick == nil {
		pick = rand.IntN
	}
	return available[pick(len(available))], nil
}
