// Package hooks rewrites translated requests before they are dispatched.
//
// Both client protocols share the same pipeline shape:
//
//	pipeline := hooks.NewPipeline(
//		tierMapping,          // client model name -> backend model, records the tier
//		capabilityAdaptation, // reasoning effort, sampling params, token ceiling
//	)
//
// The Gemini pipeline differs only in its tier rules and a mid-tier fallback
// for model names no rule matches.
package hooks
