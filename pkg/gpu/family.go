// Package gpu serializes access to the single shared accelerator. One
// model family owns the GPU at a time; switching families means
// terminating the other daemons, because CUDA pools only release
// memory when their process dies.
package gpu

import "github.com/easel-ai/easel/pkg/config"

// Family identifies which model family holds the GPU.
type Family string

const (
	FamilyNone     Family = "none"
	FamilyLLM      Family = "llm"
	FamilyImageGen Family = "imageGen"
	FamilyVision   Family = "vision"
	FamilyVLM      Family = "vlm"
)

// Families lists the resident-capable families in supervisor order.
func Families() []Family {
	return []Family{FamilyLLM, FamilyImageGen, FamilyVision, FamilyVLM}
}

// ServiceName maps a family to the supervised daemon that hosts it.
// The image generator runs as the flux service.
func (f Family) ServiceName() string {
	switch f {
	case FamilyLLM:
		return config.ServiceLLM
	case FamilyImageGen:
		return config.ServiceFlux
	case FamilyVision:
		return config.ServiceVision
	case FamilyVLM:
		return config.ServiceVLM
	}
	return ""
}

// FamilyForService is the inverse of ServiceName.
func FamilyForService(name string) (Family, bool) {
	switch name {
	case config.ServiceLLM:
		return FamilyLLM, true
	case config.ServiceFlux:
		return FamilyImageGen, true
	case config.ServiceVision:
		return FamilyVision, true
	case config.ServiceVLM:
		return FamilyVLM, true
	}
	return FamilyNone, false
}
