package stext

import (
	"log/slog"
	"time"
)

// ProcessingMetrics contains timing and statistics for a document extraction
type ProcessingMetrics struct {
	TotalTime       time.Duration
	PageExtractions []PageMetrics
	Statistics      DocumentStatistics
}

// PageMetrics contains timing for a single page
type PageMetrics struct {
	PageNumber int
	Duration   time.Duration
	Failed     bool
}

// DocumentStatistics contains document-level statistics
type DocumentStatistics struct {
	TotalPages      int
	FailedPages     int
	TotalBlocks     int
	TotalLists      int
	TotalImages     int
	TotalLines      int
	TotalCharacters int
}

// pageStatistics counts the structure of a single page.
func pageStatistics(p *Page) DocumentStatistics {
	stats := DocumentStatistics{TotalPages: 1}
	for _, block := range p.Blocks {
		stats.TotalBlocks++
		switch block.Type {
		case BlockList:
			stats.TotalLists++
		case BlockImage:
			stats.TotalImages++
		}
		stats.TotalLines += len(block.Lines)
		for _, line := range block.Lines {
			stats.TotalCharacters += len(line.Chars)
		}
	}
	return stats
}

func (s *DocumentStatistics) add(o DocumentStatistics) {
	s.TotalPages += o.TotalPages
	s.FailedPages += o.FailedPages
	s.TotalBlocks += o.TotalBlocks
	s.TotalLists += o.TotalLists
	s.TotalImages += o.TotalImages
	s.TotalLines += o.TotalLines
	s.TotalCharacters += o.TotalCharacters
}

// logProcessingMetrics logs the processing metrics as structured records
func logProcessingMetrics(logger *slog.Logger, metrics ProcessingMetrics) {
	for _, pm := range metrics.PageExtractions {
		logger.Info("page timing",
			"page", pm.PageNumber,
			"duration", pm.Duration.Round(time.Millisecond),
			"failed", pm.Failed,
		)
	}

	var avg time.Duration
	if n := len(metrics.PageExtractions); n > 0 {
		avg = metrics.TotalTime / time.Duration(n)
	}

	s := metrics.Statistics
	logger.Info("document processed",
		"total_time", metrics.TotalTime.Round(time.Millisecond),
		"avg_per_page", avg.Round(time.Millisecond),
		slog.Group("statistics",
			"pages", s.TotalPages,
			"failed_pages", s.FailedPages,
			"blocks", s.TotalBlocks,
			"lists", s.TotalLists,
			"images", s.TotalImages,
			"lines", s.TotalLines,
			"characters", s.TotalCharacters,
		),
	)
}
