package pipeline

import (
	"time"

	"github.com/Mono-TV/upcoming-content/models"
	"github.com/Mono-TV/upcoming-content/services/metadata"
)

// maxGalleryImages caps the alternate artwork lists carried per record.
const maxGalleryImages = 5

// mergeRecord combines one scraped observation with its resolved candidate.
// Scraped fields always win where both sides carry a value: the sources see
// region-specific titles, platforms, and dates before the providers do. The
// candidate fills everything the scrape cannot know. A nil candidate yields
// a record with scraped data only.
func mergeRecord(rec models.SourceRecord, cand *models.ResolvedCandidate, artwork metadata.ArtworkPolicy) models.MergedContentRecord {
	out := models.MergedContentRecord{
		Title:          rec.Title,
		Window:         rec.Window,
		ReleaseDate:    rec.RawReleaseDate,
		Platforms:      rec.Platforms,
		Deeplinks:      rec.Deeplinks,
		VideoFormats:   rec.VideoFormats,
		SourceURL:      rec.SourceURL,
		SourceImageURL: rec.SourceImageURL,
		SortDate:       rec.ReleaseDate,
		DateUnparsed:   rec.DateUnparsed || rec.ReleaseDate.IsZero(),
	}

	if cand == nil {
		return out
	}

	out.TMDBID = cand.TMDBID
	out.TMDBMediaType = cand.MediaType
	out.IMDBID = cand.IMDBID
	out.Overview = cand.Overview
	out.Genres = cand.Genres
	out.Runtime = cand.RuntimeMinutes
	out.Rating = cand.Rating
	out.VoteCount = cand.VoteCount
	out.Popularity = cand.Popularity
	out.OriginalTitle = cand.OriginalTitle
	out.OriginalLanguage = cand.OriginalLanguage
	out.Status = cand.Status
	out.NumberOfSeasons = cand.NumberOfSeasons
	out.NumberOfEpisodes = cand.NumberOfEpisodes
	out.Year = cand.Year

	if out.ReleaseDate == "" {
		out.ReleaseDate = cand.ReleaseDate
	}
	if out.DateUnparsed && cand.ReleaseDate != "" {
		if t, err := time.Parse("2006-01-02", cand.ReleaseDate); err == nil {
			out.SortDate = t
			out.DateUnparsed = false
		}
	}

	out.Platforms = unionPlatforms(rec.Platforms, cand.Platforms)

	applyArtwork(&out, cand, artwork)

	if cand.TrailerID != "" {
		setTrailer(&out, cand.TrailerID, cand.TrailerTitle)
	}

	out.Cast = cand.Cast
	out.Directors = cand.Directors
	out.Writers = cand.Writers

	return out
}

// applyArtwork ranks the candidate's posters and backdrops under the policy
// and fills the image fields: the best image becomes the primary ladder, the
// next few the gallery.
func applyArtwork(out *models.MergedContentRecord, cand *models.ResolvedCandidate, artwork metadata.ArtworkPolicy) {
	posters := artwork.Rank(cand.Posters)
	if len(posters) > 0 {
		set := metadata.PosterSet(posters[0])
		out.Posters = &set
		out.PosterURLMedium = set.Medium
		out.PosterURLLarge = set.Large
		out.PosterLanguage = posters[0].Language
		for _, p := range posters[:min(len(posters), maxGalleryImages)] {
			out.AllPosters = append(out.AllPosters, metadata.PosterSet(p))
		}
	}

	backdrops := artwork.Rank(cand.Backdrops)
	if len(backdrops) > 0 {
		set := metadata.BackdropSet(backdrops[0])
		out.Backdrops = &set
		out.BackdropURL = set.Large
		for _, b := range backdrops[:min(len(backdrops), maxGalleryImages)] {
			out.AllBackdrops = append(out.AllBackdrops, metadata.BackdropSet(b))
		}
	}
}

func setTrailer(out *models.MergedContentRecord, videoID, title string) {
	out.YouTubeID = videoID
	out.YouTubeURL = "https://www.youtube.com/watch?v=" + videoID
	out.YouTubeTitle = title
}

// unionPlatforms keeps the scraped platforms first (they reflect the actual
// regional listing) and appends provider-reported platforms not already seen.
func unionPlatforms(scraped, provider []string) []string {
	if len(provider) == 0 {
		return scraped
	}
	seen := make(map[string]struct{}, len(scraped))
	out := make([]string, 0, len(scraped)+len(provider))
	for _, p := range scraped {
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range provider {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
