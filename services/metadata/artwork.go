package metadata

import (
	"sort"

	"github.com/Mono-TV/upcoming-content/models"
)

// ArtworkPolicy is the poster/backdrop selection rule. Preferred is the
// language preference order; the literal "none" entry stands for images with
// no language tag. Unfiltered highest-quality selection keeps surfacing
// posters in languages irrelevant to the audience, so language preference is
// the primary sort key and quality only breaks ties within a language.
type ArtworkPolicy struct {
	Preferred []string
}

// DefaultArtworkPolicy matches the production preference order: English,
// then Indian languages, then untagged art.
func DefaultArtworkPolicy() ArtworkPolicy {
	return ArtworkPolicy{Preferred: []string{"en", "hi", "ta", "te", "ml", "kn", "bn", "mr", "pa", "gu", "none"}}
}

// priority returns the preference rank for a language tag, and whether the
// tag is in the preferred set at all. An empty tag counts as "none".
func (p ArtworkPolicy) priority(lang string) (int, bool) {
	if lang == "" {
		lang = "none"
	}
	for i, l := range p.Preferred {
		if l == lang {
			return i, true
		}
	}
	return len(p.Preferred), false
}

// Rank sorts candidates by the two-key policy: preference rank ascending,
// then quality score descending. Candidates outside the preferred set are
// moved after all preferred ones and ordered by quality alone. FilePath
// breaks remaining ties so the order is fully deterministic.
func (p ArtworkPolicy) Rank(candidates []models.PosterCandidate) []models.PosterCandidate {
	if len(candidates) == 0 {
		return nil
	}
	var preferred, avoided []models.PosterCandidate
	for _, c := range candidates {
		if _, ok := p.priority(c.Language); ok {
			preferred = append(preferred, c)
		} else {
			avoided = append(avoided, c)
		}
	}

	sort.SliceStable(preferred, func(i, j int) bool {
		pi, _ := p.priority(preferred[i].Language)
		pj, _ := p.priority(preferred[j].Language)
		if pi != pj {
			return pi < pj
		}
		if preferred[i].VoteAverage != preferred[j].VoteAverage {
			return preferred[i].VoteAverage > preferred[j].VoteAverage
		}
		return preferred[i].FilePath < preferred[j].FilePath
	})
	sort.SliceStable(avoided, func(i, j int) bool {
		if avoided[i].VoteAverage != avoided[j].VoteAverage {
			return avoided[i].VoteAverage > avoided[j].VoteAverage
		}
		return avoided[i].FilePath < avoided[j].FilePath
	})

	return append(preferred, avoided...)
}

// Best returns the top candidate under the policy.
func (p ArtworkPolicy) Best(candidates []models.PosterCandidate) (models.PosterCandidate, bool) {
	ranked := p.Rank(candidates)
	if len(ranked) == 0 {
		return models.PosterCandidate{}, false
	}
	return ranked[0], true
}

// PosterSet builds the frontend size ladder for a poster file path.
func PosterSet(c models.PosterCandidate) models.ImageSet {
	return models.ImageSet{
		Thumbnail: imageURL("w92", c.FilePath),
		Small:     imageURL("w185", c.FilePath),
		Medium:    imageURL("w342", c.FilePath),
		Large:     imageURL("w500", c.FilePath),
		XLarge:    imageURL("w780", c.FilePath),
		Original:  imageURL("original", c.FilePath),
		Language:  c.Language,
	}
}

// BackdropSet builds the frontend size ladder for a backdrop file path.
func BackdropSet(c models.PosterCandidate) models.ImageSet {
	return models.ImageSet{
		Small:    imageURL("w300", c.FilePath),
		Medium:   imageURL("w780", c.FilePath),
		Large:    imageURL("w1280", c.FilePath),
		Original: imageURL("original", c.FilePath),
	}
}
