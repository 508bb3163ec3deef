package inventory

import (
	"regexp"

	"github.com/jaypipes/ghw"
)

// GPU describes one usable graphics card, reported with the worker's
// capabilities at registration.
type GPU struct {
	Index  int    `json:"index"`
	Vendor string `json:"vendor,omitempty"`
	Name   string `json:"name"`
}

// Software renderers and virtual adapters are not usable for inference.
var softwareGPU = regexp.MustCompile(`(?i)llvmpipe|software|virtual`)

// DetectGPUs enumerates the machine's graphics cards, filtering out
// software renderers. On VMs and stripped-down hosts enumeration may fail
// or come back empty; callers treat that as "no GPUs", not a fatal error.
func DetectGPUs() ([]GPU, error) {
	info, err := ghw.GPU()
	if err != nil {
		return nil, err
	}

	var gpus []GPU
	for _, card := range info.GraphicsCards {
		if card.DeviceInfo == nil || card.DeviceInfo.Product == nil {
			continue
		}

		name := card.DeviceInfo.Product.Name
		if softwareGPU.MatchString(name) {
			continue
		}

		g := GPU{Index: card.Index, Name: name}
		if card.DeviceInfo.Vendor != nil {
			g.Vendor = card.DeviceInfo.Vendor.Name
		}
		gpus = append(gpus, g)
	}

	return gpus, nil
}
