package supervisor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hoferino/manda/pkg/schema"
)

// Synthesize merges the per-specialist results of one turn into a single
// response. Every dispatched result is a contributor: a failed result keeps
// its error context in the narrative and its ID in the specialist list, but
// carries zero confidence weight and no sources. Only when nothing usable
// came back at all is the response empty, leaving the apology to the
// orchestrator. A single dispatched result passes through unchanged.
func Synthesize(results []schema.SpecialistResult) schema.SynthesizedResponse {
	usable := 0
	for _, r := range results {
		if !failedOutright(r) {
			usable++
		}
	}
	if usable == 0 {
		return schema.SynthesizedResponse{}
	}

	if len(results) == 1 {
		r := results[0]
		return schema.SynthesizedResponse{
			Content:        r.Content,
			Confidence:     r.Confidence,
			Sources:        dedupeSources(r.Sources),
			Specialists:    []schema.SpecialistID{r.SpecialistID},
			WasSynthesized: false,
		}
	}

	var sections []string
	var allSources []schema.SourceCitation
	ids := make([]schema.SpecialistID, 0, len(results))
	for _, r := range results {
		sections = append(sections, fmt.Sprintf("**%s**\n%s", r.SpecialistID, sectionBody(r)))
		if !failedOutright(r) {
			allSources = append(allSources, r.Sources...)
		}
		ids = append(ids, r.SpecialistID)
	}

	return schema.SynthesizedResponse{
		Content:        strings.Join(sections, "\n\n"),
		Confidence:     combinedConfidence(results),
		Sources:        dedupeSources(allSources),
		Specialists:    ids,
		WasSynthesized: true,
	}
}

// failedOutright reports whether the result carries no answer at all, as
// opposed to a timed-out partial that still holds reduced confidence.
func failedOutright(r schema.SpecialistResult) bool {
	return r.Err != nil && r.Confidence == 0
}

// sectionBody returns the narrative for one contributor. Failed results
// contribute their error context.
func sectionBody(r schema.SpecialistResult) string {
	if r.Content != "" {
		return r.Content
	}
	if r.Err != nil {
		return r.Err.Message
	}
	return ""
}

// combinedConfidence is the self-weighted average: each result's confidence
// is weighted by itself, so one confident answer is not dragged down
// proportionally by a timed-out partial.
func combinedConfidence(results []schema.SpecialistResult) float64 {
	var num, den float64
	for _, r := range results {
		num += r.Confidence * r.Confidence
		den += r.Confidence
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// dedupeSources removes duplicate citations keyed by (DocumentID, ChunkID),
// keeping the higher relevance score, and orders the result by relevance
// descending (ties by document then chunk, for stable output).
func dedupeSources(sources []schema.SourceCitation) []schema.SourceCitation {
	if len(sources) == 0 {
		return nil
	}

	type key struct{ doc, chunk string }
	best := make(map[key]schema.SourceCitation, len(sources))
	for _, s := range sources {
		k := key{doc: s.DocumentID, chunk: s.ChunkID}
		if cur, ok := best[k]; !ok || s.RelevanceScore > cur.RelevanceScore {
			best[k] = s
		}
	}

	out := make([]schema.SourceCitation, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
