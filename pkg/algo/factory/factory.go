// Package factory wires the concrete algorithm implementations into an
// algo.Registry. It is split out from pkg/algo itself to avoid an import
// cycle (ewma and samplehold both import pkg/algo for the shared
// interface and helpers).
package factory

import (
	"github.com/morse-wifi/dcsd/pkg/algo"
	"github.com/morse-wifi/dcsd/pkg/algo/ewma"
	"github.com/morse-wifi/dcsd/pkg/algo/samplehold"
)

// NewDefaultRegistry returns a Registry with both built-in algorithms
// registered under the names dcs.algo_type recognises.
func NewDefaultRegistry() *algo.Registry {
	r := algo.NewRegistry()
	r.Register("ewma", ewma.New)
	r.Register("sample_and_hold", samplehold.New)
	return r
}
