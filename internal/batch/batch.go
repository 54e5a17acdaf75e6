// Package batch splits a target device set into ordered, disjoint
// batches for phased execution.
package batch

import (
	"fmt"

	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// Plan partitions devices into consecutive batches of at most size
// devices, preserving the input order. Every device lands in exactly
// one batch; only the final batch may be short.
func Plan(devices []model.Device, size int) ([][]model.Device, error) {
	if size < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", size)
	}
	if len(devices) == 0 {
		return nil, nil
	}

	batches := make([][]model.Device, 0, (len(devices)+size-1)/size)
	for start := 0; start < len(devices); start += size {
		end := start + size
		if end > len(devices) {
			end = len(devices)
		}
		batches = append(batches, devices[start:end:end])
	}
	return batches, nil
}
