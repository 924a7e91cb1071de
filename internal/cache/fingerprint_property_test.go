//go:build property

package cache

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func inlineInputs(contents []string) []InputSignature {
	inputs := make([]InputSignature, len(contents))
	for i, c := range contents {
		inputs[i] = InputSignature{Kind: InputInline, Hash: hashBytes([]byte(c))}
	}
	return inputs
}

// TestFingerprintProperties validates the determinism and sensitivity of fingerprints
func TestFingerprintProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234) // For reproducible results
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("fingerprint is deterministic", prop.ForAll(
		func(contents []string) bool {
			return Fingerprint(inlineInputs(contents), cssChain, 16) ==
				Fingerprint(inlineInputs(contents), cssChain, 16)
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.Property("appending a source changes the fingerprint", prop.ForAll(
		func(contents []string, extra string) bool {
			longer := append(append([]string(nil), contents...), extra)
			return Fingerprint(inlineInputs(contents), cssChain, 16) !=
				Fingerprint(inlineInputs(longer), cssChain, 16)
		},
		gen.SliceOf(gen.AnyString()),
		gen.AnyString(),
	))

	properties.Property("changing one source changes the fingerprint", prop.ForAll(
		func(contents []string, index int, suffix string) bool {
			if len(contents) == 0 || suffix == "" {
				return true
			}
			changed := append([]string(nil), contents...)
			i := index % len(changed)
			changed[i] += suffix
			return Fingerprint(inlineInputs(contents), cssChain, 16) !=
				Fingerprint(inlineInputs(changed), cssChain, 16)
		},
		gen.SliceOfN(5, gen.AlphaString()),
		gen.IntRange(0, 100),
		gen.AlphaString(),
	))

	properties.Property("swapping distinct sources changes the fingerprint", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			return Fingerprint(inlineInputs([]string{a, b}), cssChain, 16) !=
				Fingerprint(inlineInputs([]string{b, a}), cssChain, 16)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
