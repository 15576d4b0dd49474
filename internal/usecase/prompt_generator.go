package usecase

import (
	"math/rand"
	"strings"
)

// Built-in variation presets used when a batch does not supply its own
// options for a template key.
var defaultVariations = map[string][]string{
	"colors":       {"red", "blue", "green", "orange", "black", "white", "brown", "gray", "golden", "silver"},
	"environments": {"indoor", "outdoor", "studio", "nature", "urban", "forest", "beach", "mountain", "desert", "underwater"},
	"actions":      {"sitting", "standing", "running", "sleeping", "eating", "playing", "walking", "jumping", "resting", "looking"},
	"styles":       {"photorealistic", "cinematic", "artistic", "professional photo", "highly detailed", "studio lighting"},
	"lighting":     {"natural light", "studio lighting", "golden hour", "dramatic lighting", "soft light", "backlit", "rim lighting"},
	"camera":       {"close-up", "portrait", "full body", "wide angle", "macro", "eye-level", "overhead shot"},
}

const defaultTemplate = "A {color} {target} {action} in a {environment}, {style}, {lighting}, 8k, highly detailed"

// templateKeys that always get a fallback value so the default template
// never renders with an unfilled placeholder.
var templateKeys = []string{"color", "environment", "action", "style", "lighting", "camera"}

// GenerateSinglePrompt builds one prompt by choosing a random option per
// variation category and substituting into the template. Category names are
// matched to placeholders by stripping a trailing pluralizing "s"
// ("colors" fills {color}).
func GenerateSinglePrompt(targetSubject string, variations map[string][]string, template string) string {
	if template == "" {
		template = defaultTemplate
	}

	replacements := map[string]string{"target": targetSubject}
	for key, values := range variations {
		if len(values) == 0 {
			continue
		}
		replacements[strings.TrimSuffix(key, "s")] = values[rand.Intn(len(values))]
	}
	for _, key := range templateKeys {
		if _, ok := replacements[key]; ok {
			continue
		}
		if defaults := defaultVariations[key+"s"]; len(defaults) > 0 {
			replacements[key] = defaults[rand.Intn(len(defaults))]
		}
	}

	prompt, ok := fillTemplate(template, replacements)
	if !ok {
		// Template referenced a key nobody can fill; fall back to plain
		// concatenation rather than failing the batch.
		prompt = "A " + replacements["color"] + " " + targetSubject + " " +
			replacements["action"] + " in " + replacements["environment"] + ", " +
			orDefault(replacements["style"], "photorealistic") + ", highly detailed"
	}
	return strings.Join(strings.Fields(prompt), " ")
}

// GeneratePrompts produces total prompts for a batch. Uniqueness is
// best-effort: up to 3*total attempts against a seen-set, then the remaining
// slots are padded with possibly duplicate prompts. Batch size is a hard
// requirement, exact uniqueness is not.
func GeneratePrompts(targetSubject string, total int, variations map[string][]string, template string) []string {
	prompts := make([]string, 0, total)
	seen := make(map[string]struct{}, total)
	maxAttempts := total * 3

	for attempts := 0; len(prompts) < total && attempts < maxAttempts; attempts++ {
		p := GenerateSinglePrompt(targetSubject, variations, template)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		prompts = append(prompts, p)
	}
	for len(prompts) < total {
		prompts = append(prompts, GenerateSinglePrompt(targetSubject, variations, template))
	}
	return prompts
}

// EstimateUniqueCombinations returns the maximum number of distinct prompts
// the variation lists can produce.
func EstimateUniqueCombinations(variations map[string][]string) int {
	total := 1
	for _, values := range variations {
		if len(values) > 0 {
			total *= len(values)
		}
	}
	return total
}

// SamplePrompts generates a handful of preview prompts for the batch form.
func SamplePrompts(targetSubject string, variations map[string][]string, template string, count int) []string {
	if count <= 0 {
		count = 5
	}
	return GeneratePrompts(targetSubject, count, variations, template)
}

// fillTemplate substitutes {key} placeholders. Returns false if the template
// references a key with no replacement.
func fillTemplate(template string, replacements map[string]string) (string, bool) {
	var sb strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			return sb.String(), true
		}
		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			sb.WriteString(rest)
			return sb.String(), true
		}
		key := rest[open+1 : open+close]
		val, ok := replacements[key]
		if !ok {
			return "", false
		}
		sb.WriteString(rest[:open])
		sb.WriteString(val)
		rest = rest[open+close+1:]
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
